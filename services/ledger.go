package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"roundabout/metrics"
	"roundabout/models"
	"roundabout/realtime"
)

// LedgerService owns the append-only points ledger. Balances are always summed
// from ledger rows; Profile.PointsBalance is a projection refreshed in the same
// transaction as every append.
type LedgerService struct {
	DB     *gorm.DB
	clock  clockwork.Clock
	logger *zap.Logger
	publisher
}

func NewLedgerService(db *gorm.DB, hub realtime.Hub, clock clockwork.Clock, logger *zap.Logger) *LedgerService {
	logger = logger.Named("ledger")
	return &LedgerService{
		DB:        db,
		clock:     clock,
		logger:    logger,
		publisher: publisher{hub: hub, logger: logger},
	}
}

// Entry describes one balance change.
type Entry struct {
	UserID      string
	Amount      int64
	Type        models.TransactionType
	Source      models.TransactionSource
	SourceID    string
	Description string
}

func (e Entry) validate() error {
	if e.UserID == "" || e.SourceID == "" {
		return fmt.Errorf("%w: ledger entry needs a user and a source id", ErrInvalidInput)
	}
	switch e.Type {
	case models.TransactionEarned, models.TransactionBonus:
		if e.Amount < 0 {
			return fmt.Errorf("%w: %s entry cannot be negative", ErrInvalidInput, e.Type)
		}
	case models.TransactionSpent:
		if e.Amount > 0 {
			return fmt.Errorf("%w: spent entry cannot be positive", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalidInput, e.Type)
	}
	return nil
}

// Posting is a committed ledger entry and the balance it produced.
type Posting struct {
	Transaction models.PointsTransaction `json:"transaction"`
	Balance     int64                    `json:"balance"`
	Version     int64                    `json:"version"`
	Level       int                      `json:"level"`
	LeveledUp   bool                     `json:"leveled_up"`
}

// lockProfile ensures the profile row exists and locks it for the rest of tx.
// Every ledger write for a user goes through this lock.
func lockProfile(tx *gorm.DB, userID string) (*models.Profile, error) {
	seed := models.Profile{UserID: userID, Username: userID, Level: 1}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("ensure profile %s: %w", userID, err)
	}
	var p models.Profile
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&p).Error; err != nil {
		return nil, fmt.Errorf("lock profile %s: %w", userID, err)
	}
	return &p, nil
}

func balanceOf(tx *gorm.DB, userID string) (int64, error) {
	var sum int64
	err := tx.Model(&models.PointsTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

func lifetimeEarnedOf(tx *gorm.DB, userID string) (int64, error) {
	var sum int64
	err := tx.Model(&models.PointsTransaction{}).
		Where("user_id = ? AND amount > 0", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

// refreshProjection recomputes the cached balance, lifetime total and level.
func refreshProjection(tx *gorm.DB, p *models.Profile, now time.Time) (leveledUp bool, err error) {
	balance, err := balanceOf(tx, p.UserID)
	if err != nil {
		return false, fmt.Errorf("sum balance: %w", err)
	}
	lifetime, err := lifetimeEarnedOf(tx, p.UserID)
	if err != nil {
		return false, fmt.Errorf("sum lifetime: %w", err)
	}
	level := LevelFor(lifetime)

	version := p.LedgerVersion + 1
	updates := map[string]any{
		"points_balance":  balance,
		"lifetime_earned": lifetime,
		"level":           level,
		"ledger_version":  version,
	}
	if level > p.Level {
		leveledUp = true
		updates["last_level_up_at"] = now
		p.LastLevelUpAt = &now
	}
	if err := tx.Model(&models.Profile{}).Where("user_id = ?", p.UserID).Updates(updates).Error; err != nil {
		return false, fmt.Errorf("refresh profile projection: %w", err)
	}
	p.PointsBalance = balance
	p.LifetimeEarned = lifetime
	p.Level = level
	p.LedgerVersion = version
	return leveledUp, nil
}

// appendTx appends one entry inside tx. Callers run afterCommit once tx commits.
func (s *LedgerService) appendTx(tx *gorm.DB, now time.Time, e Entry) (*Posting, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	p, err := lockProfile(tx, e.UserID)
	if err != nil {
		return nil, err
	}

	var existing int64
	if err := tx.Model(&models.PointsTransaction{}).
		Where("source = ? AND source_id = ? AND type = ?", e.Source, e.SourceID, e.Type).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("check ledger source: %w", err)
	}
	if existing > 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrDuplicateLedgerEntry, e.Source, e.SourceID)
	}

	t := models.PointsTransaction{
		ID:          uuid.NewString(),
		UserID:      e.UserID,
		Amount:      e.Amount,
		Type:        e.Type,
		Description: e.Description,
		Source:      e.Source,
		SourceID:    e.SourceID,
		CreatedAt:   now,
	}
	if err := tx.Create(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s %s", ErrDuplicateLedgerEntry, e.Source, e.SourceID)
		}
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}

	leveledUp, err := refreshProjection(tx, p, now)
	if err != nil {
		return nil, err
	}
	return &Posting{Transaction: t, Balance: p.PointsBalance, Version: p.LedgerVersion, Level: p.Level, LeveledUp: leveledUp}, nil
}

func (s *LedgerService) afterCommit(ctx context.Context, posting *Posting) {
	if posting == nil {
		return
	}
	amount := posting.Transaction.Amount
	if amount < 0 {
		amount = -amount
	}
	metrics.PointsLedgered.WithLabelValues(string(posting.Transaction.Type)).Add(float64(amount))
	s.publish(ctx, realtime.ChannelPoints, realtime.KindInsert, posting.Transaction.UserID, posting)
	if posting.LeveledUp {
		s.logger.Info("[LEDGER] 🎮 level up",
			zap.String("user_id", posting.Transaction.UserID),
			zap.Int("level", posting.Level))
	}
}

// Post appends a single entry in its own transaction.
func (s *LedgerService) Post(ctx context.Context, e Entry) (*Posting, error) {
	var posting *Posting
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		posting, err = s.appendTx(tx, s.clock.Now().UTC(), e)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, posting)
	return posting, nil
}

// GrantBonus credits a bonus. sourceID makes the grant idempotent; an empty one
// gets a fresh id.
func (s *LedgerService) GrantBonus(ctx context.Context, userID string, amount int64, description, sourceID string) (*Posting, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: bonus must be positive", ErrInvalidInput)
	}
	if sourceID == "" {
		sourceID = uuid.NewString()
	}
	posting, err := s.Post(ctx, Entry{
		UserID:      userID,
		Amount:      amount,
		Type:        models.TransactionBonus,
		Source:      models.SourceAdmin,
		SourceID:    sourceID,
		Description: description,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("[LEDGER] bonus granted", zap.String("user_id", userID), zap.Int64("amount", amount))
	return posting, nil
}

// Balance sums the user's ledger.
func (s *LedgerService) Balance(ctx context.Context, userID string) (int64, error) {
	return balanceOf(s.DB.WithContext(ctx), userID)
}

// History returns the newest entries first.
func (s *LedgerService) History(ctx context.Context, userID string, limit int) ([]models.PointsTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var txs []models.PointsTransaction
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

type PointsSummary struct {
	Balance       int64         `json:"balance"`
	CachedBalance int64         `json:"cached_balance"`
	InSync        bool          `json:"in_sync"`
	Progress      LevelProgress `json:"progress"`
}

func (s *LedgerService) Summary(ctx context.Context, userID string) (*PointsSummary, error) {
	db := s.DB.WithContext(ctx)
	balance, err := balanceOf(db, userID)
	if err != nil {
		return nil, err
	}
	lifetime, err := lifetimeEarnedOf(db, userID)
	if err != nil {
		return nil, err
	}

	var cached int64
	var p models.Profile
	err = db.Select("points_balance").Where("user_id = ?", userID).First(&p).Error
	switch {
	case err == nil:
		cached = p.PointsBalance
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	return &PointsSummary{
		Balance:       balance,
		CachedBalance: cached,
		InSync:        balance == cached,
		Progress:      ProgressFor(lifetime),
	}, nil
}

// Reconcile rebuilds the cached projection from the ledger.
func (s *LedgerService) Reconcile(ctx context.Context, userID string) (*models.Profile, error) {
	var profile *models.Profile
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockProfile(tx, userID)
		if err != nil {
			return err
		}
		before := p.PointsBalance
		if _, err := refreshProjection(tx, p, s.clock.Now().UTC()); err != nil {
			return err
		}
		if before != p.PointsBalance {
			s.logger.Warn("[LEDGER] projection drift corrected",
				zap.String("user_id", userID),
				zap.Int64("cached", before),
				zap.Int64("ledger", p.PointsBalance))
		}
		profile = p
		return nil
	})
	return profile, err
}
