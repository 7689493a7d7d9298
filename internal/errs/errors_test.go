package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsMatchesWrappedDetail(t *testing.T) {
	err := fmt.Errorf("lock payment: %w", ErrInvalidTransactionAmount.With("want %d got %d", 100, 99))

	require.ErrorIs(t, err, ErrInvalidTransactionAmount)
	require.NotErrorIs(t, err, ErrPlanNotFound)
	require.Equal(t, KindValidation, KindOf(err))
	require.Equal(t, "InvalidTransactionAmount", NameOf(err))
	require.Contains(t, err.Error(), "want 100 got 99")
}

func TestKindOfPlainError(t *testing.T) {
	err := errors.New("disk on fire")
	require.Equal(t, KindInternal, KindOf(err))
	require.Equal(t, "InternalError", NameOf(err))
}

func TestTaxonomy(t *testing.T) {
	cases := map[*Error]Kind{
		ErrOnlyOwner:                  KindAuthorization,
		ErrOnlyGovernor:               KindAuthorization,
		ErrAgreementNotFound:          KindNotFound,
		ErrConditionIDNotFound:        KindNotFound,
		ErrAgreementAlreadyRegistered: KindConflict,
		ErrPlanAlreadyRegistered:      KindConflict,
		ErrFeesNotIncluded:            KindValidation,
		ErrInvalidCreditsBurnProof:    KindValidation,
	}
	for e, kind := range cases {
		require.Equal(t, kind, e.Kind, e.Name)
	}
}
