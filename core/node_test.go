package core

import (
	"errors"
	"testing"

	"stakevault/crypto"
	"stakevault/native/vault"
	"stakevault/storage"
)

func testNodeAddr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func testNodeItem(b byte) [32]byte {
	var id [32]byte
	id[0] = b
	return id
}

func newTestNode(t *testing.T) (*Node, *int64) {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	node, err := NewNode(storage.NewMemDB(), key, vault.DefaultPolicy())
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	now := int64(1_700_000_000)
	node.SetNowFunc(func() int64 { return now })
	return node, &now
}

func TestNewNodeValidation(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if _, err := NewNode(nil, key, vault.DefaultPolicy()); err == nil {
		t.Fatalf("expected nil db rejection")
	}
	if _, err := NewNode(storage.NewMemDB(), nil, vault.DefaultPolicy()); err == nil {
		t.Fatalf("expected nil key rejection")
	}
	bad := vault.DefaultPolicy()
	bad.MinStakeGapSeconds = -1
	if _, err := NewNode(storage.NewMemDB(), key, bad); err == nil {
		t.Fatalf("expected policy rejection")
	}
}

func TestNodeStakeClaimUnstakeFlow(t *testing.T) {
	node, now := newTestNode(t)
	authority := testNodeAddr(1)
	user := testNodeAddr(7)
	collection := testNodeItem(1)
	item := testNodeItem(10)

	if err := node.EnsureRewardToken("SVT", "StakeVault Token", 6); err != nil {
		t.Fatalf("ensure token: %v", err)
	}
	if err := node.EnsureRewardToken("SVT", "StakeVault Token", 6); err != nil {
		t.Fatalf("ensure token twice: %v", err)
	}
	if err := node.SeedItem(item, user, collection, true); err != nil {
		t.Fatalf("seed item: %v", err)
	}
	if err := node.SeedItem(item, user, collection, true); err != nil {
		t.Fatalf("seed item twice: %v", err)
	}

	if _, err := node.VaultInitialize(authority, vault.InitParams{
		RewardToken:         "SVT",
		Collection:          collection,
		RewardRatePerSecond: 10,
	}); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if _, err := node.VaultStake(user, item); err != nil {
		t.Fatalf("stake: %v", err)
	}
	staked, found, err := node.ItemByID(item)
	if err != nil || !found {
		t.Fatalf("item lookup: found=%v err=%v", found, err)
	}
	var custodian [20]byte
	copy(custodian[:], node.Custodian().Bytes())
	if staked.Owner != custodian {
		t.Fatalf("item not in custody: %x", staked.Owner)
	}

	*now += 3600
	total, err := node.VaultClaim(user)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if total != 36_000 {
		t.Fatalf("unexpected claim total: %d", total)
	}
	balance, err := node.TokenBalance(user, "SVT")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != "36000" {
		t.Fatalf("unexpected balance: %s", balance)
	}

	position, err := node.VaultUserInfo(user)
	if err != nil {
		t.Fatalf("user info: %v", err)
	}
	if position.StakedCount != 1 || position.PendingRewards != 0 {
		t.Fatalf("unexpected position: %+v", position)
	}

	*now += 300
	_, released, err := node.VaultUnstake(user, nil)
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if released != item {
		t.Fatalf("unexpected released item: %x", released)
	}
	returned, _, err := node.ItemByID(item)
	if err != nil {
		t.Fatalf("item lookup: %v", err)
	}
	if returned.Owner != user {
		t.Fatalf("item not returned: %x", returned.Owner)
	}

	users, err := node.VaultUsers()
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if len(users) != 1 || users[0] != user {
		t.Fatalf("unexpected user listing: %v", users)
	}
}

func TestNodeRejectsForeignItems(t *testing.T) {
	node, _ := newTestNode(t)
	authority := testNodeAddr(1)
	user := testNodeAddr(7)
	collection := testNodeItem(1)
	foreign := testNodeItem(2)
	item := testNodeItem(10)

	if err := node.EnsureRewardToken("SVT", "StakeVault Token", 6); err != nil {
		t.Fatalf("ensure token: %v", err)
	}
	if err := node.SeedItem(item, user, foreign, true); err != nil {
		t.Fatalf("seed item: %v", err)
	}
	if _, err := node.VaultInitialize(authority, vault.InitParams{
		RewardToken:         "SVT",
		Collection:          collection,
		RewardRatePerSecond: 10,
	}); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if _, err := node.VaultStake(user, item); !errors.Is(err, vault.ErrWrongCollection) {
		t.Fatalf("expected wrong collection rejection, got %v", err)
	}
	breaker, err := node.VaultBreakerInfo()
	if err != nil {
		t.Fatalf("breaker info: %v", err)
	}
	if breaker.FailedTransactions != 1 {
		t.Fatalf("rejection not recorded: %+v", breaker)
	}
}
