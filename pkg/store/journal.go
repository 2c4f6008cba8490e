package store

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gtdvccc/solclmm/pkg"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrMintMismatch      = errors.New("token account holds a different mint")
)

type balanceRecord struct {
	Account   string          `gorm:"primaryKey;size:44"`
	Mint      string          `gorm:"size:44;not null"`
	Amount    decimal.Decimal `gorm:"type:varchar(32);not null"`
	UpdatedAt time.Time
}

func (balanceRecord) TableName() string {
	return "ledger_balances"
}

type transferRecord struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement"`
	Batch       uint64          `gorm:"index;not null"`
	Mint        string          `gorm:"size:44;not null"`
	Source      string          `gorm:"size:44;not null"`
	Destination string          `gorm:"size:44;not null"`
	Authority   string          `gorm:"size:44;not null"`
	Amount      decimal.Decimal `gorm:"type:varchar(32);not null"`
	CreatedAt   time.Time
}

func (transferRecord) TableName() string {
	return "ledger_transfers"
}

// Journal is a SQL-backed token ledger. Balances and the transfer journal
// change in the same database transaction.
type Journal struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewJournal(db *gorm.DB, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&balanceRecord{}, &transferRecord{}); err != nil {
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return &Journal{db: db, logger: logger}, nil
}

// MintTo credits amount of mint to account.
func (j *Journal) MintTo(ctx context.Context, account, mint solana.PublicKey, amount uint64) error {
	return j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := loadBalance(tx, account, mint)
		if err != nil {
			return err
		}
		next, err := addAmount(rec.Amount, amount)
		if err != nil {
			return err
		}
		rec.Amount = next
		return tx.Save(rec).Error
	})
}

func (j *Journal) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	var rec balanceRecord
	err := j.db.WithContext(ctx).Where("account = ?", account.String()).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return toUint64(rec.Amount)
}

func (j *Journal) Transfer(ctx context.Context, t pkg.Transfer) error {
	return j.TransferBatch(ctx, []pkg.Transfer{t})
}

func (j *Journal) TransferBatch(ctx context.Context, ts []pkg.Transfer) error {
	if len(ts) == 0 {
		return nil
	}
	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last uint64
		if err := tx.Model(&transferRecord{}).Select("COALESCE(MAX(batch), 0)").Scan(&last).Error; err != nil {
			return fmt.Errorf("next batch: %w", err)
		}
		for i, t := range ts {
			if err := applyTransfer(tx, last+1, t); err != nil {
				return fmt.Errorf("transfer %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	j.logger.Debug("transfers journaled", zap.Int("count", len(ts)))
	return nil
}

// History returns every journaled transfer in order.
func (j *Journal) History(ctx context.Context) ([]pkg.Transfer, error) {
	var recs []transferRecord
	if err := j.db.WithContext(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]pkg.Transfer, 0, len(recs))
	for _, rec := range recs {
		amount, err := toUint64(rec.Amount)
		if err != nil {
			return nil, err
		}
		t := pkg.Transfer{Amount: amount}
		for dst, src := range map[*solana.PublicKey]string{
			&t.Mint: rec.Mint, &t.From: rec.Source, &t.To: rec.Destination, &t.Authority: rec.Authority,
		} {
			if *dst, err = solana.PublicKeyFromBase58(src); err != nil {
				return nil, fmt.Errorf("transfer %d: %w", rec.ID, err)
			}
		}
		out = append(out, t)
	}
	return out, nil
}

func applyTransfer(tx *gorm.DB, batch uint64, t pkg.Transfer) error {
	from, err := loadBalance(tx, t.From, t.Mint)
	if err != nil {
		return err
	}
	have, err := toUint64(from.Amount)
	if err != nil {
		return err
	}
	if have < t.Amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, t.From, have, t.Amount)
	}
	from.Amount = fromUint64(have - t.Amount)
	if err := tx.Save(from).Error; err != nil {
		return err
	}

	to, err := loadBalance(tx, t.To, t.Mint)
	if err != nil {
		return err
	}
	if to.Amount, err = addAmount(to.Amount, t.Amount); err != nil {
		return err
	}
	if err := tx.Save(to).Error; err != nil {
		return err
	}

	return tx.Create(&transferRecord{
		Batch:       batch,
		Mint:        t.Mint.String(),
		Source:      t.From.String(),
		Destination: t.To.String(),
		Authority:   t.Authority.String(),
		Amount:      fromUint64(t.Amount),
	}).Error
}

func loadBalance(tx *gorm.DB, account, mint solana.PublicKey) (*balanceRecord, error) {
	rec := &balanceRecord{}
	err := tx.Where("account = ?", account.String()).Take(rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &balanceRecord{Account: account.String(), Mint: mint.String(), Amount: decimal.Zero}, nil
	}
	if err != nil {
		return nil, err
	}
	if rec.Mint != mint.String() {
		return nil, fmt.Errorf("%w: %s holds %s, not %s", ErrMintMismatch, account, rec.Mint, mint)
	}
	return rec, nil
}

var maxUint64 = decimal.NewFromBigInt(new(big.Int).SetUint64(^uint64(0)), 0)

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

func toUint64(d decimal.Decimal) (uint64, error) {
	if d.IsNegative() || d.GreaterThan(maxUint64) || !d.IsInteger() {
		return 0, fmt.Errorf("balance %s is not a u64", d)
	}
	return d.BigInt().Uint64(), nil
}

func addAmount(d decimal.Decimal, amount uint64) (decimal.Decimal, error) {
	sum := d.Add(fromUint64(amount))
	if sum.GreaterThan(maxUint64) {
		return decimal.Zero, fmt.Errorf("balance overflow: %s + %d", d, amount)
	}
	return sum, nil
}
