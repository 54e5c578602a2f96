// Package app composes the oracle layer into a running application.
//
// # Package Structure
//
//	internal/app/
//	├── application.go  # Application struct, wiring, and lifecycle
//	├── domain/         # Domain models (pure data structures)
//	│   ├── market/     # Pool, feed and asset capability contracts
//	│   └── oracle/     # Records, descriptors, admin state, events
//	├── normalizer/     # Decimal scalar computation and caching
//	├── feeds/          # Price feed reading and normalization
//	├── nebula/         # Per-family pricing engine (oracle instances)
//	├── registry/       # Top-level oracle directory and dispatch
//	├── storage/        # Store interfaces, memory and postgres backends
//	├── httpapi/        # HTTP API handlers and routing
//	├── chainclient/    # HTTP chain gateway implementation of market.Source
//	├── pricewatch/     # Background price observer
//	├── system/         # Lifecycle management (Service, Manager)
//	└── metrics/        # Prometheus collectors
//
// The pricing math itself lives in internal/fixedpoint; everything in this
// tree deals with orchestration, persistence and transport around it.
package app
