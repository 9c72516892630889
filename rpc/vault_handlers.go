package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"stakevault/native/vault"
)

// JSON-RPC error codes for vault domain rejections. Infrastructure failures
// fall back to codeServerError.
const (
	codeVaultNotInitialized = -32040
	codeVaultConflict       = -32041
	codeVaultPaused         = -32042
	codeVaultGuard          = -32043
	codeVaultForbidden      = -32044
	codeVaultItem           = -32045
	codeVaultRewards        = -32046
	codeVaultArithmetic     = -32047
)

// writeVaultError maps an engine error onto the RPC surface. Domain
// rejections keep their sentinel message; anything unrecognised is treated as
// an internal failure.
func writeVaultError(w http.ResponseWriter, id interface{}, err error) {
	status := http.StatusBadRequest
	code := codeServerError

	switch {
	case errors.Is(err, vault.ErrNotInitialized):
		code = codeVaultNotInitialized
	case errors.Is(err, vault.ErrAlreadyInitialized),
		errors.Is(err, vault.ErrAlreadyPaused),
		errors.Is(err, vault.ErrNotPaused),
		errors.Is(err, vault.ErrRoleNotGranted),
		errors.Is(err, vault.ErrUpgradePending),
		errors.Is(err, vault.ErrNoUpgradePending),
		errors.Is(err, vault.ErrTimelockNotExpired),
		errors.Is(err, vault.ErrUpgradesLocked),
		errors.Is(err, vault.ErrUpgradesAlreadyLocked):
		code = codeVaultConflict
	case errors.Is(err, vault.ErrVaultPaused):
		code = codeVaultPaused
	case errors.Is(err, vault.ErrBreakerActive),
		errors.Is(err, vault.ErrStakeTooFrequent),
		errors.Is(err, vault.ErrClaimTooFrequent),
		errors.Is(err, vault.ErrDailyLimitExceeded):
		code = codeVaultGuard
	case errors.Is(err, vault.ErrUnauthorized),
		errors.Is(err, vault.ErrInsufficientPermissions):
		status = http.StatusForbidden
		code = codeVaultForbidden
	case errors.Is(err, vault.ErrNoItemsStaked),
		errors.Is(err, vault.ErrItemNotStaked),
		errors.Is(err, vault.ErrInvalidItem),
		errors.Is(err, vault.ErrNoCollection),
		errors.Is(err, vault.ErrCollectionNotVerified),
		errors.Is(err, vault.ErrWrongCollection):
		code = codeVaultItem
	case errors.Is(err, vault.ErrNoRewardsToClaim),
		errors.Is(err, vault.ErrExcessiveRewardClaim):
		code = codeVaultRewards
	case errors.Is(err, vault.ErrMathOverflow),
		errors.Is(err, vault.ErrMathUnderflow),
		errors.Is(err, vault.ErrInvalidTimeElapsed):
		code = codeVaultArithmetic
	case errors.Is(err, vault.ErrInvalidRewardRate),
		errors.Is(err, vault.ErrInvalidRole),
		errors.Is(err, vault.ErrInvalidVersion),
		errors.Is(err, vault.ErrInvalidTimelock):
		code = codeInvalidParams
	default:
		status = http.StatusInternalServerError
	}

	writeError(w, status, id, code, err.Error(), nil)
}

func singleObjectParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("parameter object required")
	}
	return json.Unmarshal(req.Params[0], out)
}

func (s *Server) handleVaultInitialize(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller        string `json:"caller"`
		RewardToken   string `json:"rewardToken"`
		Collection    string `json:"collection"`
		RatePerSecond uint64 `json:"ratePerSecond"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid initialize parameters", err.Error())
		return
	}
	caller, err := parseAddressParam(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	collection, err := parseIDParam(params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid collection id", err.Error())
		return
	}
	v, err := s.node.VaultInitialize(caller, vault.InitParams{
		RewardToken:         params.RewardToken,
		Collection:          collection,
		RewardRatePerSecond: params.RatePerSecond,
	})
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, vaultInfoResult(v))
}

func (s *Server) handleVaultStake(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller string `json:"caller"`
		Item   string `json:"item"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid stake parameters", err.Error())
		return
	}
	caller, err := parseAddressParam(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	item, err := parseIDParam(params.Item)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid item id", err.Error())
		return
	}
	position, err := s.node.VaultStake(caller, item)
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, stakePositionResult(position))
}

func (s *Server) handleVaultUnstake(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller string `json:"caller"`
		Item   string `json:"item,omitempty"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid unstake parameters", err.Error())
		return
	}
	caller, err := parseAddressParam(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	var item *[32]byte
	if params.Item != "" {
		parsed, err := parseIDParam(params.Item)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid item id", err.Error())
			return
		}
		item = &parsed
	}
	position, released, err := s.node.VaultUnstake(caller, item)
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	result := stakePositionResult(position)
	result.ReleasedItem = formatID(released)
	writeResult(w, req.ID, result)
}

func (s *Server) handleVaultClaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller string `json:"caller"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid claim parameters", err.Error())
		return
	}
	caller, err := parseAddressParam(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	amount, err := s.node.VaultClaim(caller)
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ClaimResult{User: params.Caller, Amount: amount})
}

func (s *Server) handleCallerAction(w http.ResponseWriter, req *RPCRequest, apply func([20]byte) error) {
	var params struct {
		Caller string `json:"caller"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := parseAddressParam(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	if err := apply(caller); err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleVaultPause(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleCallerAction(w, req, s.node.VaultPause)
}

func (s *Server) handleVaultUnpause(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleCallerAction(w, req, s.node.VaultUnpause)
}

func (s *Server) handleVaultGrantRole(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller string `json:"caller"`
		User   string `json:"user"`
		Role   string `json:"role"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid grantRole parameters", err.Error())
		return
	}
	caller, err := parseAddressParam(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	subject, err := parseAddressParam(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	role, err := vault.ParseRole(params.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid role", err.Error())
		return
	}
	if err := s.node.VaultGrantRole(caller, subject, role); err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, RoleResult{User: params.User, Role: role.String(), GrantedBy: params.Caller})
}

func (s *Server) handleVaultRevokeRole(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller string `json:"caller"`
		User   string `json:"user"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid revokeRole parameters", err.Error())
		return
	}
	caller, err := parseAddressParam(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	subject, err := parseAddressParam(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	if err := s.node.VaultRevokeRole(caller, subject); err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleVaultProposeUpgrade(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller          string `json:"caller"`
		NewVersion      uint32 `json:"newVersion"`
		TimelockSeconds int64  `json:"timelockSeconds"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid proposeUpgrade parameters", err.Error())
		return
	}
	caller, err := parseAddressParam(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	pending, err := s.node.VaultProposeUpgrade(caller, params.NewVersion, params.TimelockSeconds)
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, pendingUpgradeResult(pending))
}

func (s *Server) handleVaultExecuteUpgrade(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller string `json:"caller"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid executeUpgrade parameters", err.Error())
		return
	}
	caller, err := parseAddressParam(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	version, err := s.node.VaultExecuteUpgrade(caller)
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint32{"version": version})
}

func (s *Server) handleVaultCancelUpgrade(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleCallerAction(w, req, s.node.VaultCancelUpgrade)
}

func (s *Server) handleVaultLockUpgrades(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleCallerAction(w, req, s.node.VaultLockUpgrades)
}

func (s *Server) handleVaultUpdateConfig(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller        string  `json:"caller"`
		RatePerSecond *uint64 `json:"ratePerSecond,omitempty"`
		Collection    *string `json:"collection,omitempty"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid updateConfig parameters", err.Error())
		return
	}
	caller, err := parseAddressParam(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	var collection *[32]byte
	if params.Collection != nil {
		parsed, err := parseIDParam(*params.Collection)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid collection id", err.Error())
			return
		}
		collection = &parsed
	}
	if err := s.node.VaultUpdateConfig(caller, params.RatePerSecond, collection); err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleVaultInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	v, err := s.node.VaultInfo()
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, vaultInfoResult(v))
}

func (s *Server) handleVaultUserInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		User string `json:"user"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid userInfo parameters", err.Error())
		return
	}
	user, err := parseAddressParam(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	position, err := s.node.VaultUserInfo(user)
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, userPositionResult(position))
}

func (s *Server) handleVaultUsers(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	users, err := s.node.VaultUsers()
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	out := make([]string, 0, len(users))
	for _, user := range users {
		out = append(out, formatAddress(user))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleVaultRoleOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		User string `json:"user"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid roleOf parameters", err.Error())
		return
	}
	user, err := parseAddressParam(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	grant, found, err := s.node.VaultRoleOf(user)
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	if !found {
		writeResult(w, req.ID, RoleResult{User: params.User, Role: vault.RoleNone.String()})
		return
	}
	writeResult(w, req.ID, RoleResult{
		User:      params.User,
		Role:      grant.Role.String(),
		GrantedBy: formatAddress(grant.GrantedBy),
		GrantedAt: grant.GrantedAtUnix,
	})
}

func (s *Server) handleVaultBreakerInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	breaker, err := s.node.VaultBreakerInfo()
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, BreakerResult{
		FailureCount:       breaker.FailureCount,
		LastFailureAt:      breaker.LastFailureUnix,
		Blocked:            breaker.Blocked,
		TotalTransactions:  breaker.TotalTransactions,
		FailedTransactions: breaker.FailedTransactions,
	})
}

func (s *Server) handleVaultLimitsInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	limits, err := s.node.VaultLimitsInfo()
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, LimitsResult{
		StakesToday:         limits.StakesToday,
		ClaimsToday:         limits.ClaimsToday,
		RewardsClaimedToday: limits.RewardsClaimedToday,
		LastReset:           limits.LastResetUnix,
	})
}

func (s *Server) handleVaultPendingUpgrade(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	pending, found, err := s.node.VaultPendingUpgrade()
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	if !found {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, pendingUpgradeResult(pending))
}

func (s *Server) handleVaultEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Cursor uint64 `json:"cursor"`
		Limit  int    `json:"limit"`
	}
	if len(req.Params) > 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "too many parameters", nil)
		return
	}
	if len(req.Params) == 1 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid events parameters", err.Error())
			return
		}
	}
	journal := s.node.Journal()
	if journal == nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "event journal unavailable", nil)
		return
	}
	stored, err := journal.EventsAfter(params.Cursor, params.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to read events", err.Error())
		return
	}
	page := EventsPage{Events: make([]EventRecord, 0, len(stored)), NextCursor: params.Cursor}
	for _, record := range stored {
		page.Events = append(page.Events, EventRecord{
			Sequence:   record.Sequence,
			Type:       record.Type,
			Attributes: record.Attributes,
			EmittedAt:  record.EmittedAt,
		})
		page.NextCursor = record.Sequence
	}
	writeResult(w, req.ID, page)
}
