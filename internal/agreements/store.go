// Package agreements is the Agreement Store: it owns agreement records and
// enforces the forward-only condition state machine.
package agreements

import (
	"go-agreements/internal/access"
	"go-agreements/internal/chain"
	"go-agreements/internal/errs"
	"go-agreements/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const ContractName = "AgreementsStore"

const keyIndex = "agreements/index"

// Reader is what conditions need to inspect agreements.
type Reader interface {
	GetAgreement(tx *chain.Tx, agreementID common.Hash) (*models.Agreement, error)
	GetConditionState(tx *chain.Tx, agreementID, conditionID common.Hash) (models.ConditionState, error)
}

type Store struct {
	address common.Address
	roles   access.RoleChecker
	logger  *logrus.Logger
}

var _ Reader = (*Store)(nil)

func NewStore(rt *chain.Runtime, roles access.RoleChecker, logger *logrus.Logger) *Store {
	return &Store{address: rt.Deploy(ContractName), roles: roles, logger: logger}
}

func (s *Store) Address() common.Address { return s.address }

// Register records a new agreement. Template only. initialStates may be empty;
// otherwise it must be parallel to conditionIDs and hold only
// UNINITIALIZED or UNFULFILLED. Every condition starts UNFULFILLED.
func (s *Store) Register(tx *chain.Tx, agreementID common.Hash, creator common.Address, planID common.Hash, conditionIDs []common.Hash, initialStates []models.ConditionState, params []byte) error {
	if err := s.require(tx, access.TemplateRole, errs.ErrOnlyTemplate); err != nil {
		return err
	}
	existing, err := s.load(tx, agreementID)
	if err != nil {
		return err
	}
	if existing != nil {
		return errs.ErrAgreementAlreadyRegistered.With("%s", agreementID.Hex())
	}
	if len(conditionIDs) == 0 {
		return errs.ErrConditionIDNotFound.With("agreement %s has no conditions", agreementID.Hex())
	}
	if len(initialStates) != 0 && len(initialStates) != len(conditionIDs) {
		return errs.ErrInvalidConditionState.With("%d states for %d conditions", len(initialStates), len(conditionIDs))
	}
	seen := make(map[common.Hash]bool, len(conditionIDs))
	states := make([]models.ConditionState, len(conditionIDs))
	for i, id := range conditionIDs {
		if seen[id] {
			return errs.ErrInvalidConditionState.With("duplicate condition %s", id.Hex())
		}
		seen[id] = true
		if len(initialStates) > 0 && initialStates[i] != models.ConditionUninitialized && initialStates[i] != models.ConditionUnfulfilled {
			return errs.ErrInvalidConditionState.With("condition %s cannot start %s", id.Hex(), initialStates[i])
		}
		states[i] = models.ConditionUnfulfilled
	}

	agreement := models.Agreement{
		ID:              agreementID,
		Creator:         creator,
		PlanID:          planID,
		ConditionIDs:    append([]common.Hash(nil), conditionIDs...),
		ConditionStates: states,
		Params:          append([]byte(nil), params...),
		LastUpdated:     tx.Now(),
	}
	if err := tx.Save(agreementKey(agreementID), &agreement); err != nil {
		return err
	}
	var index []common.Hash
	if _, err := tx.Load(keyIndex, &index); err != nil {
		return err
	}
	if err := tx.Save(keyIndex, append(index, agreementID)); err != nil {
		return err
	}
	tx.Emit("AgreementRegistered", chain.Fields{
		"agreementId":  agreementID,
		"creator":      creator,
		"planId":       planID,
		"conditionIds": agreement.ConditionIDs,
		"template":     tx.Sender(),
	})
	s.logger.WithFields(logrus.Fields{
		"agreement_id": agreementID.Hex(),
		"creator":      creator.Hex(),
		"plan_id":      planID.Hex(),
	}).Debug("Agreement registered")
	return nil
}

// UpdateConditionStatus moves a condition forward. Condition only. A
// condition already FULFILLED or ABORTED can never change again.
func (s *Store) UpdateConditionStatus(tx *chain.Tx, agreementID, conditionID common.Hash, next models.ConditionState) error {
	if err := s.require(tx, access.ConditionRole, errs.ErrOnlyCondition); err != nil {
		return err
	}
	agreement, err := s.GetAgreement(tx, agreementID)
	if err != nil {
		return err
	}
	idx := agreement.ConditionIndex(conditionID)
	if idx < 0 {
		return errs.ErrConditionIDNotFound.With("%s in agreement %s", conditionID.Hex(), agreementID.Hex())
	}
	current := agreement.ConditionStates[idx]
	if current.Terminal() || next <= current || next > models.ConditionAborted {
		return errs.ErrInvalidConditionState.With("%s -> %s", current, next)
	}
	agreement.ConditionStates[idx] = next
	agreement.LastUpdated = tx.Now()
	if err := tx.Save(agreementKey(agreementID), agreement); err != nil {
		return err
	}
	tx.Emit("ConditionUpdated", chain.Fields{
		"agreementId": agreementID,
		"conditionId": conditionID,
		"state":       next.String(),
		"condition":   tx.Sender(),
	})
	return nil
}

// GetAgreement fails with AgreementNotFound for unknown ids
func (s *Store) GetAgreement(tx *chain.Tx, agreementID common.Hash) (*models.Agreement, error) {
	agreement, err := s.load(tx, agreementID)
	if err != nil {
		return nil, err
	}
	if agreement == nil {
		return nil, errs.ErrAgreementNotFound.With("%s", agreementID.Hex())
	}
	return agreement, nil
}

func (s *Store) GetConditionState(tx *chain.Tx, agreementID, conditionID common.Hash) (models.ConditionState, error) {
	agreement, err := s.GetAgreement(tx, agreementID)
	if err != nil {
		return models.ConditionUninitialized, err
	}
	idx := agreement.ConditionIndex(conditionID)
	if idx < 0 {
		return models.ConditionUninitialized, errs.ErrConditionIDNotFound.With("%s in agreement %s", conditionID.Hex(), agreementID.Hex())
	}
	return agreement.ConditionStates[idx], nil
}

// IDs lists agreements in registration order.
func (s *Store) IDs(tx *chain.Tx) ([]common.Hash, error) {
	var index []common.Hash
	if _, err := tx.Load(keyIndex, &index); err != nil {
		return nil, err
	}
	return index, nil
}

func (s *Store) load(tx *chain.Tx, id common.Hash) (*models.Agreement, error) {
	var agreement models.Agreement
	ok, err := tx.Load(agreementKey(id), &agreement)
	if err != nil || !ok || agreement.LastUpdated == 0 {
		return nil, err
	}
	return &agreement, nil
}

func (s *Store) require(tx *chain.Tx, role access.Role, denied *errs.Error) error {
	ok, err := s.roles.HasRole(tx, tx.Sender(), role)
	if err != nil {
		return err
	}
	if !ok {
		return denied.With("%s lacks %s", tx.Sender().Hex(), access.RoleName(role))
	}
	return nil
}

func agreementKey(id common.Hash) string { return "agreements/agreement/" + id.Hex() }
