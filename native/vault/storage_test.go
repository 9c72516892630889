package vault

import (
	"testing"

	"stakevault/core/state"
	"stakevault/storage"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	return NewStorage(state.NewManager(storage.NewMemDB()))
}

func TestStorageVaultRoundTrip(t *testing.T) {
	store := newTestStorage(t)

	if _, found, err := store.VaultGet(); err != nil {
		t.Fatalf("get empty: %v", err)
	} else if found {
		t.Fatalf("did not expect vault before put")
	}

	var authority, proposer [20]byte
	authority[0] = 1
	proposer[0] = 2
	var collection [32]byte
	collection[31] = 7

	v := &Vault{
		Authority:           authority,
		TotalStaked:         4,
		RewardToken:         "SVT",
		RewardRatePerSecond: 10,
		Collection:          collection,
		Paused:              true,
		CreatedAtUnix:       1_700_000_000,
		UpgradeAuthority:    authority,
		Version:             3,
		UpgradeLocked:       false,
		Pending: &PendingUpgrade{
			NewVersion:    4,
			ScheduledUnix: 1_700_010_000,
			Proposer:      proposer,
		},
		Breaker: CircuitBreakerState{
			FailureCount:       2,
			LastFailureUnix:    1_700_000_500,
			Blocked:            true,
			TotalTransactions:  9,
			FailedTransactions: 2,
		},
		Limits: DailyLimits{
			StakesToday:         3,
			ClaimsToday:         1,
			RewardsClaimedToday: 12_000,
			LastResetUnix:       1_700_000_100,
		},
		Policy: DefaultPolicy(),
	}
	if err := store.VaultPut(v); err != nil {
		t.Fatalf("put: %v", err)
	}

	loaded, found, err := store.VaultGet()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatalf("expected stored vault")
	}
	if loaded.Authority != authority || loaded.TotalStaked != 4 || loaded.RewardToken != "SVT" {
		t.Fatalf("unexpected vault core fields: %+v", loaded)
	}
	if loaded.Collection != collection || !loaded.Paused || loaded.CreatedAtUnix != 1_700_000_000 {
		t.Fatalf("unexpected vault config fields: %+v", loaded)
	}
	if loaded.Version != 3 || loaded.Pending == nil {
		t.Fatalf("unexpected upgrade fields: %+v", loaded)
	}
	if loaded.Pending.NewVersion != 4 || loaded.Pending.ScheduledUnix != 1_700_010_000 || loaded.Pending.Proposer != proposer {
		t.Fatalf("unexpected pending upgrade: %+v", loaded.Pending)
	}
	if loaded.Breaker != v.Breaker {
		t.Fatalf("unexpected breaker state: got %+v want %+v", loaded.Breaker, v.Breaker)
	}
	if loaded.Limits != v.Limits {
		t.Fatalf("unexpected limits: got %+v want %+v", loaded.Limits, v.Limits)
	}
	if loaded.Policy != v.Policy {
		t.Fatalf("unexpected policy: got %+v want %+v", loaded.Policy, v.Policy)
	}
}

func TestStorageVaultWithoutPending(t *testing.T) {
	store := newTestStorage(t)

	v := &Vault{RewardToken: "SVT", RewardRatePerSecond: 1, Version: 1, Policy: DefaultPolicy()}
	if err := store.VaultPut(v); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, _, err := store.VaultGet()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Pending != nil {
		t.Fatalf("expected nil pending upgrade, got %+v", loaded.Pending)
	}
}

func TestStorageUserRoundTripAndIndex(t *testing.T) {
	store := newTestStorage(t)

	var alice, bob [20]byte
	alice[19] = 1
	bob[19] = 2
	var item [32]byte
	item[0] = 9

	if _, found, err := store.UserGet(alice); err != nil || found {
		t.Fatalf("unexpected user before put: found=%v err=%v", found, err)
	}

	u := &UserStake{User: alice, StakedCount: 1, PendingRewards: 500, LastUpdateUnix: 1_700_000_000, Items: [][32]byte{item}}
	if err := store.UserPut(u); err != nil {
		t.Fatalf("put alice: %v", err)
	}
	if err := store.UserIndexAppend(alice); err != nil {
		t.Fatalf("index alice: %v", err)
	}
	if err := store.UserPut(&UserStake{User: bob}); err != nil {
		t.Fatalf("put bob: %v", err)
	}
	if err := store.UserIndexAppend(bob); err != nil {
		t.Fatalf("index bob: %v", err)
	}
	if err := store.UserIndexAppend(alice); err != nil {
		t.Fatalf("re-index alice: %v", err)
	}

	loaded, found, err := store.UserGet(alice)
	if err != nil {
		t.Fatalf("get alice: %v", err)
	}
	if !found {
		t.Fatalf("expected alice record")
	}
	if loaded.StakedCount != 1 || loaded.PendingRewards != 500 || loaded.LastUpdateUnix != 1_700_000_000 {
		t.Fatalf("unexpected user fields: %+v", loaded)
	}
	if len(loaded.Items) != 1 || loaded.Items[0] != item {
		t.Fatalf("unexpected items: %v", loaded.Items)
	}

	index, err := store.UserIndex()
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if len(index) != 2 {
		t.Fatalf("expected two index entries, got %d", len(index))
	}
	if index[0] != alice || index[1] != bob {
		t.Fatalf("unexpected index order: %v", index)
	}
}

func TestStorageRoleLifecycle(t *testing.T) {
	store := newTestStorage(t)

	var admin, grantee [20]byte
	admin[0] = 1
	grantee[0] = 2

	if _, found, err := store.RoleGet(grantee); err != nil || found {
		t.Fatalf("unexpected grant before put: found=%v err=%v", found, err)
	}

	grant := &RoleGrant{User: grantee, Role: RoleModerator, GrantedBy: admin, GrantedAtUnix: 1_700_000_000}
	if err := store.RolePut(grant); err != nil {
		t.Fatalf("put: %v", err)
	}

	loaded, found, err := store.RoleGet(grantee)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatalf("expected stored grant")
	}
	if loaded.Role != RoleModerator || loaded.GrantedBy != admin || loaded.GrantedAtUnix != 1_700_000_000 {
		t.Fatalf("unexpected grant: %+v", loaded)
	}

	if err := store.RoleDelete(grantee); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, err := store.RoleGet(grantee); err != nil || found {
		t.Fatalf("expected grant removed: found=%v err=%v", found, err)
	}
	if err := store.RoleDelete(grantee); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
}

func TestStorageNegativeTimestampsClampToZero(t *testing.T) {
	store := newTestStorage(t)

	v := &Vault{RewardToken: "SVT", RewardRatePerSecond: 1, Version: 1, CreatedAtUnix: -5}
	if err := store.VaultPut(v); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, _, err := store.VaultGet()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.CreatedAtUnix != 0 {
		t.Fatalf("expected clamped timestamp, got %d", loaded.CreatedAtUnix)
	}
}
