package credits

import (
	"math/big"

	"go-agreements/internal/chain"
	"go-agreements/internal/errs"
	"go-agreements/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// book is the balance representation behind a ledger.
type book interface {
	balance(tx *chain.Tx, holder common.Address, planID common.Hash) (*big.Int, error)
	add(tx *chain.Tx, holder common.Address, planID common.Hash, amount *big.Int, durationSecs uint64) (expiresAt uint64, err error)
	consume(tx *chain.Tx, holder common.Address, planID common.Hash, amount *big.Int) error
	batches(tx *chain.Tx, holder common.Address, planID common.Hash) ([]models.CreditBatch, error)
}

// counterBook keeps one permanent counter per holder and plan.
type counterBook struct {
	prefix string
}

func (b counterBook) key(holder common.Address, planID common.Hash) string {
	return b.prefix + "/balance/" + planID.Hex() + "/" + holder.Hex()
}

func (b counterBook) balance(tx *chain.Tx, holder common.Address, planID common.Hash) (*big.Int, error) {
	n := new(big.Int)
	if _, err := tx.Load(b.key(holder, planID), n); err != nil {
		return nil, err
	}
	return n, nil
}

func (b counterBook) add(tx *chain.Tx, holder common.Address, planID common.Hash, amount *big.Int, _ uint64) (uint64, error) {
	bal, err := b.balance(tx, holder, planID)
	if err != nil {
		return 0, err
	}
	return 0, tx.Save(b.key(holder, planID), bal.Add(bal, amount))
}

func (b counterBook) consume(tx *chain.Tx, holder common.Address, planID common.Hash, amount *big.Int) error {
	bal, err := b.balance(tx, holder, planID)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return errs.ErrInsufficientCredits.With("%s holds %s of %s, needs %s", holder.Hex(), bal, planID.Hex(), amount)
	}
	bal.Sub(bal, amount)
	if bal.Sign() == 0 {
		return tx.Delete(b.key(holder, planID))
	}
	return tx.Save(b.key(holder, planID), bal)
}

func (b counterBook) batches(tx *chain.Tx, holder common.Address, planID common.Hash) ([]models.CreditBatch, error) {
	bal, err := b.balance(tx, holder, planID)
	if err != nil || bal.Sign() == 0 {
		return nil, err
	}
	return []models.CreditBatch{{Amount: bal}}, nil
}

// batchBook keeps an insertion-ordered list of batches per holder and plan.
// Expiry is evaluated on read; expired batches are only dropped by a burn.
type batchBook struct {
	prefix string
}

func (b batchBook) key(holder common.Address, planID common.Hash) string {
	return b.prefix + "/batches/" + planID.Hex() + "/" + holder.Hex()
}

func (b batchBook) batches(tx *chain.Tx, holder common.Address, planID common.Hash) ([]models.CreditBatch, error) {
	var list []models.CreditBatch
	if _, err := tx.Load(b.key(holder, planID), &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (b batchBook) balance(tx *chain.Tx, holder common.Address, planID common.Hash) (*big.Int, error) {
	list, err := b.batches(tx, holder, planID)
	if err != nil {
		return nil, err
	}
	return liveSum(list, tx.Now()), nil
}

func (b batchBook) add(tx *chain.Tx, holder common.Address, planID common.Hash, amount *big.Int, durationSecs uint64) (uint64, error) {
	list, err := b.batches(tx, holder, planID)
	if err != nil {
		return 0, err
	}
	var expiresAt uint64
	if durationSecs > 0 {
		expiresAt = tx.Now() + durationSecs
	}
	list = append(list, models.CreditBatch{Amount: new(big.Int).Set(amount), ExpiresAt: expiresAt})
	return expiresAt, tx.Save(b.key(holder, planID), list)
}

// consume burns amount from live batches, oldest first, and drops every
// expired batch it walks past.
func (b batchBook) consume(tx *chain.Tx, holder common.Address, planID common.Hash, amount *big.Int) error {
	list, err := b.batches(tx, holder, planID)
	if err != nil {
		return err
	}
	now := tx.Now()
	if live := liveSum(list, now); live.Cmp(amount) < 0 {
		return errs.ErrInsufficientCredits.With("%s holds %s live credits of %s, needs %s", holder.Hex(), live, planID.Hex(), amount)
	}
	left := new(big.Int).Set(amount)
	kept := list[:0]
	for _, batch := range list {
		if !batch.Live(now) {
			continue
		}
		if left.Sign() > 0 {
			if batch.Amount.Cmp(left) <= 0 {
				left.Sub(left, batch.Amount)
				continue
			}
			batch.Amount = new(big.Int).Sub(batch.Amount, left)
			left.SetInt64(0)
		}
		kept = append(kept, batch)
	}
	if len(kept) == 0 {
		return tx.Delete(b.key(holder, planID))
	}
	return tx.Save(b.key(holder, planID), kept)
}

func liveSum(list []models.CreditBatch, now uint64) *big.Int {
	sum := new(big.Int)
	for _, batch := range list {
		if batch.Live(now) && batch.Amount != nil {
			sum.Add(sum, batch.Amount)
		}
	}
	return sum
}
