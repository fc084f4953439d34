package escrow

import (
	"testing"

	"custody_go/internal/access"
	"custody_go/internal/domain"
	"custody_go/internal/ledger"
	"custody_go/pkg/quant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	admin     = domain.Principal("admin")
	depositor = domain.Principal("dana")
	recipient = domain.Principal("carl")
	outsider  = domain.Principal("mallory")
)

func setup(t *testing.T) (*ledger.Ledger, *Controller, domain.EscrowID) {
	t.Helper()
	l := ledger.New(access.NewGuard(admin))
	require.NoError(t, l.Mint(admin, 500, depositor))
	c := NewController(l)
	id, err := c.Open(depositor, recipient)
	require.NoError(t, err)
	return l, c, id
}

func state(t *testing.T, c *Controller, id domain.EscrowID) domain.EscrowState {
	t.Helper()
	r, ok := c.Get(id)
	require.True(t, ok)
	return r.State
}

func TestDepositRefund(t *testing.T) {
	l, c, id := setup(t)

	require.NoError(t, c.Deposit(depositor, id, 100))
	assert.Equal(t, domain.EscrowPending, state(t, c, id))
	assert.Equal(t, quant.Amount(400), l.BalanceOf(depositor))
	assert.Equal(t, quant.Amount(100), l.BalanceOf(domain.EscrowCustody(id)))

	require.NoError(t, c.Refund(depositor, id))
	r, _ := c.Get(id)
	assert.Equal(t, domain.EscrowCancelled, r.State)
	assert.Equal(t, quant.Amount(0), r.Amount)
	assert.Equal(t, quant.Amount(500), l.BalanceOf(depositor))
	assert.Equal(t, quant.Amount(0), l.BalanceOf(domain.EscrowCustody(id)))
	assert.NoError(t, l.VerifyInvariant())
}

func TestApproveRelease(t *testing.T) {
	l, c, id := setup(t)
	require.NoError(t, c.Deposit(depositor, id, 100))

	require.NoError(t, c.Approve(depositor, id))
	assert.Equal(t, domain.EscrowPending, state(t, c, id), "one approval is not enough")
	assert.ErrorIs(t, c.Release(depositor, id), domain.ErrInvalidState)

	require.NoError(t, c.Approve(recipient, id))
	assert.Equal(t, domain.EscrowApproved, state(t, c, id))

	// refund is closed once both parties agreed
	assert.ErrorIs(t, c.Refund(depositor, id), domain.ErrInvalidState)

	require.NoError(t, c.Release(recipient, id))
	r, _ := c.Get(id)
	assert.Equal(t, domain.EscrowCompleted, r.State)
	assert.Equal(t, quant.Amount(0), r.Amount)
	assert.Equal(t, quant.Amount(100), l.BalanceOf(recipient))
	assert.Equal(t, quant.Amount(400), l.BalanceOf(depositor))
}

func TestApprove_SamePartyTwice(t *testing.T) {
	_, c, id := setup(t)
	require.NoError(t, c.Deposit(depositor, id, 100))

	require.NoError(t, c.Approve(depositor, id))
	assert.ErrorIs(t, c.Approve(depositor, id), domain.ErrInvalidState)
	assert.Equal(t, domain.EscrowPending, state(t, c, id))
	assert.ErrorIs(t, c.Release(depositor, id), domain.ErrInvalidState)
}

func TestInvalidTransitions(t *testing.T) {
	t.Run("approve before deposit", func(t *testing.T) {
		_, c, id := setup(t)
		assert.ErrorIs(t, c.Approve(depositor, id), domain.ErrInvalidState)
	})

	t.Run("refund before deposit", func(t *testing.T) {
		_, c, id := setup(t)
		assert.ErrorIs(t, c.Refund(depositor, id), domain.ErrInvalidState)
	})

	t.Run("double deposit", func(t *testing.T) {
		l, c, id := setup(t)
		require.NoError(t, c.Deposit(depositor, id, 100))
		assert.ErrorIs(t, c.Deposit(depositor, id, 100), domain.ErrInvalidState)
		assert.Equal(t, quant.Amount(400), l.BalanceOf(depositor))
	})

	t.Run("terminal states are dead ends", func(t *testing.T) {
		_, c, id := setup(t)
		require.NoError(t, c.Deposit(depositor, id, 100))
		require.NoError(t, c.Refund(recipient, id))

		assert.ErrorIs(t, c.Deposit(depositor, id, 100), domain.ErrInvalidState)
		assert.ErrorIs(t, c.Approve(depositor, id), domain.ErrInvalidState)
		assert.ErrorIs(t, c.Release(depositor, id), domain.ErrInvalidState)
		assert.ErrorIs(t, c.Refund(depositor, id), domain.ErrInvalidState)
	})

	t.Run("release twice", func(t *testing.T) {
		l, c, id := setup(t)
		require.NoError(t, c.Deposit(depositor, id, 100))
		require.NoError(t, c.Approve(depositor, id))
		require.NoError(t, c.Approve(recipient, id))
		require.NoError(t, c.Release(depositor, id))
		assert.ErrorIs(t, c.Release(depositor, id), domain.ErrInvalidState)
		assert.Equal(t, quant.Amount(100), l.BalanceOf(recipient))
	})
}

func TestDeposit_Rejections(t *testing.T) {
	l, c, id := setup(t)

	assert.ErrorIs(t, c.Deposit(recipient, id, 10), domain.ErrNotAuthorized)
	assert.ErrorIs(t, c.Deposit(depositor, id, 0), domain.ErrInvalidAmount)
	assert.ErrorIs(t, c.Deposit(depositor, id, 501), domain.ErrInsufficientBalance)
	assert.ErrorIs(t, c.Deposit(depositor, 77, 10), domain.ErrUnknownEscrow)

	assert.Equal(t, domain.EscrowEmpty, state(t, c, id))
	assert.Equal(t, quant.Amount(500), l.BalanceOf(depositor))
}

func TestOutsiderRejected(t *testing.T) {
	_, c, id := setup(t)
	require.NoError(t, c.Deposit(depositor, id, 100))

	assert.ErrorIs(t, c.Approve(outsider, id), domain.ErrNotAuthorized)
	assert.ErrorIs(t, c.Refund(outsider, id), domain.ErrNotAuthorized)
	assert.ErrorIs(t, c.Release(outsider, id), domain.ErrNotAuthorized)
}

func TestOpen_Rejections(t *testing.T) {
	c := NewController(ledger.New(access.NewGuard(admin)))

	_, err := c.Open(depositor, depositor)
	assert.ErrorIs(t, err, domain.ErrInvalidPrincipal)
	_, err = c.Open("", recipient)
	assert.ErrorIs(t, err, domain.ErrInvalidPrincipal)
	_, err = c.Open(depositor, domain.EscrowCustody(1))
	assert.ErrorIs(t, err, domain.ErrInvalidPrincipal)
	assert.Equal(t, domain.EscrowID(0), c.LastID())
}

// TestRelease_Reentrancy lets the transition observer try to release and
// refund again while being notified of the completed release.
func TestRelease_Reentrancy(t *testing.T) {
	l, c, id := setup(t)
	require.NoError(t, c.Deposit(depositor, id, 100))
	require.NoError(t, c.Approve(depositor, id))
	require.NoError(t, c.Approve(recipient, id))

	var (
		releaseErr, refundErr error
		seenBalance           quant.Amount
	)
	c.OnTransition(func(r domain.EscrowRecord) {
		if r.State != domain.EscrowCompleted {
			return
		}
		seenBalance = l.BalanceOf(recipient)
		releaseErr = c.Release(recipient, r.ID)
		refundErr = c.Refund(depositor, r.ID)
	})

	require.NoError(t, c.Release(recipient, id))
	assert.ErrorIs(t, releaseErr, domain.ErrInvalidState)
	assert.ErrorIs(t, refundErr, domain.ErrInvalidState)
	assert.Equal(t, quant.Amount(100), seenBalance)
	assert.Equal(t, quant.Amount(100), l.BalanceOf(recipient))
	assert.NoError(t, l.VerifyInvariant())
}

func TestSnapshotRestore(t *testing.T) {
	_, c, id := setup(t)
	require.NoError(t, c.Deposit(depositor, id, 100))
	require.NoError(t, c.Approve(recipient, id))

	restored := NewController(ledger.New(access.NewGuard(admin)))
	require.NoError(t, restored.Restore(c.Snapshot(), c.LastID()))

	r, ok := restored.Get(id)
	require.True(t, ok)
	assert.True(t, r.CounterpartyApproved)
	assert.Equal(t, quant.Amount(100), r.Amount)

	next, err := restored.Open(depositor, recipient)
	require.NoError(t, err)
	assert.Equal(t, id+1, next)
}
