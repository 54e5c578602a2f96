package oracle

import "errors"

// Every operation either succeeds fully or fails with one of these without
// mutating state. Nothing here is retryable from the engine's point of view;
// retries are caller policy.
var (
	// State preconditions.
	ErrPairAlreadyInitialized = errors.New("oracle: pair already initialized")
	ErrPairNotInitialized     = errors.New("oracle: pair not initialized")
	ErrOracleAlreadyAdded     = errors.New("oracle: instance already added")
	ErrNebulaNotFound         = errors.New("oracle: nebula not found")

	// Authorization.
	ErrNotAdmin     = errors.New("oracle: caller is not the admin")
	ErrNotRegistrar = errors.New("oracle: caller is not the registrar")

	// Admin transfer.
	ErrPendingAdminAlreadySet = errors.New("oracle: pending admin already set")
	ErrAdminCantBeZero        = errors.New("oracle: admin can't be zero")

	// Decimal metadata.
	ErrDecimalsZero     = errors.New("oracle: asset reports zero decimals")
	ErrDecimalsTooLarge = errors.New("oracle: asset decimals exceed 18")

	// Read-path defenses.
	ErrAlreadyInContext = errors.New("oracle: pool already in context")
	ErrInvalidFeedValue = errors.New("oracle: feed reported a negative price")
	ErrPriceCantBeZero  = errors.New("oracle: price can't be zero")

	// Registration shape.
	ErrFeedCountMismatch = errors.New("oracle: feed count does not match pool tokens")
)
