package vault

import "errors"

var (
	// Arithmetic failures are surfaced, never wrapped or truncated.
	ErrMathOverflow  = errors.New("vault: math overflow")
	ErrMathUnderflow = errors.New("vault: math underflow")

	ErrNotInitialized     = errors.New("vault: vault not initialized")
	ErrAlreadyInitialized = errors.New("vault: vault already initialized")

	ErrNoItemsStaked    = errors.New("vault: no items staked")
	ErrItemNotStaked    = errors.New("vault: item not staked by caller")
	ErrNoRewardsToClaim = errors.New("vault: no rewards to claim")

	ErrInvalidItem           = errors.New("vault: item must be a single unit with zero decimals")
	ErrNoCollection          = errors.New("vault: item carries no collection reference")
	ErrCollectionNotVerified = errors.New("vault: item collection is not verified")
	ErrWrongCollection       = errors.New("vault: item does not belong to the configured collection")

	ErrVaultPaused   = errors.New("vault: vault is paused")
	ErrAlreadyPaused = errors.New("vault: already paused")
	ErrNotPaused     = errors.New("vault: not paused")

	ErrStakeTooFrequent = errors.New("vault: operation too frequent")
	ErrClaimTooFrequent = errors.New("vault: claim too frequent")

	ErrInvalidTimeElapsed   = errors.New("vault: invalid time elapsed")
	ErrExcessiveRewardClaim = errors.New("vault: excessive reward claim")
	ErrInvalidRewardRate    = errors.New("vault: reward rate must be greater than zero")

	ErrUnauthorized            = errors.New("vault: unauthorized")
	ErrInsufficientPermissions = errors.New("vault: insufficient permissions")
	ErrInvalidRole             = errors.New("vault: invalid role")
	ErrRoleNotGranted          = errors.New("vault: role not granted")

	ErrUpgradesLocked        = errors.New("vault: upgrades are permanently locked")
	ErrUpgradePending        = errors.New("vault: an upgrade is already pending")
	ErrNoUpgradePending      = errors.New("vault: no upgrade is pending")
	ErrInvalidVersion        = errors.New("vault: invalid version number")
	ErrInvalidTimelock       = errors.New("vault: invalid timelock duration")
	ErrTimelockNotExpired    = errors.New("vault: timelock has not expired")
	ErrUpgradesAlreadyLocked = errors.New("vault: upgrades are already locked")

	ErrMintAuthorityTransfer = errors.New("vault: failed to transfer mint authority to the vault")
	ErrInvalidMintAuthority  = errors.New("vault: invalid mint authority")

	ErrBreakerActive      = errors.New("vault: circuit breaker is active")
	ErrDailyLimitExceeded = errors.New("vault: daily operation limit exceeded")
)

var (
	errStateNotConfigured    = errors.New("vault: state not configured")
	errAssetsNotConfigured   = errors.New("vault: asset ledger not configured")
	errMetadataNotConfigured = errors.New("vault: collection metadata not configured")
)
