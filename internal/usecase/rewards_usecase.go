package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type RewardsUsecase struct {
	tx                    repo.TransactionManager
	ledger                *LedgerUsecase
	idGen                 IDGenerator
	clock                 Clock
	log                   *slog.Logger
	referralTTL           time.Duration
	defaultReferralReward int64
}

func NewRewardsUsecase(
	tx repo.TransactionManager,
	ledger *LedgerUsecase,
	idGen IDGenerator,
	clock Clock,
	log *slog.Logger,
	referralTTL time.Duration,
	defaultReferralReward int64,
) *RewardsUsecase {
	return &RewardsUsecase{
		tx:                    tx,
		ledger:                ledger,
		idGen:                 idGen,
		clock:                 clock,
		log:                   log,
		referralTTL:           referralTTL,
		defaultReferralReward: defaultReferralReward,
	}
}

type LoyaltyOutput struct {
	AccountID        string          `json:"account_id"`
	Balance          decimal.Decimal `json:"balance"`
	LifetimeEarned   decimal.Decimal `json:"lifetime_earned"`
	Tier             string          `json:"tier"`
	Multiplier       decimal.Decimal `json:"multiplier"`
	NextTier         string          `json:"next_tier,omitempty"`
	PointsToNextTier decimal.Decimal `json:"points_to_next_tier"`
}

type tierStep struct {
	tier model.Tier
	min  decimal.Decimal
}

// 次の段階までの距離
var nextTiers = []tierStep{
	{model.TierSilver, decimal.NewFromInt(500)},
	{model.TierGold, decimal.NewFromInt(2000)},
	{model.TierPlatinum, decimal.NewFromInt(5000)},
}

// EnsureLoyaltyAccountTx は顧客のポイント口座を返す。無ければ作る。
func (u *RewardsUsecase) EnsureLoyaltyAccountTx(ctx context.Context, r repo.TxRepos, customerID string) (model.LedgerAccount, error) {
	a, err := r.Ledger().FindAccountByCustomer(ctx, customerID, model.LedgerAccountLoyalty)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return model.LedgerAccount{}, dbError(err)
	}

	a, err = u.ledger.OpenAccountTx(ctx, r, model.LedgerAccountLoyalty, lo.ToPtr(customerID))
	if errors.Is(err, repo.ErrDuplicate) {
		// 同時に作られた
		a, err = r.Ledger().FindAccountByCustomer(ctx, customerID, model.LedgerAccountLoyalty)
	}
	if err != nil {
		return model.LedgerAccount{}, dbError(err)
	}
	return a, nil
}

func (u *RewardsUsecase) Loyalty(ctx context.Context, customerID string) (LoyaltyOutput, error) {
	if customerID == "" {
		return LoyaltyOutput{}, newError(ErrUnauthorized, "unauthorized")
	}
	var out LoyaltyOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		a, err := u.EnsureLoyaltyAccountTx(ctx, r, customerID)
		if err != nil {
			return err
		}
		out = LoyaltyOutput{
			AccountID:        a.ID,
			Balance:          a.Balance,
			LifetimeEarned:   a.LifetimeEarned,
			Tier:             string(a.Tier),
			Multiplier:       a.Tier.Multiplier(),
			PointsToNextTier: decimal.Zero,
		}
		if next, ok := lo.Find(nextTiers, func(n tierStep) bool {
			return a.LifetimeEarned.LessThan(n.min)
		}); ok {
			out.NextTier = string(next.tier)
			out.PointsToNextTier = next.min.Sub(a.LifetimeEarned)
		}
		return nil
	})
	return out, err
}

func (u *RewardsUsecase) LoyaltyHistory(ctx context.Context, customerID string) ([]model.LedgerTransaction, error) {
	if customerID == "" {
		return nil, newError(ErrUnauthorized, "unauthorized")
	}
	var out []model.LedgerTransaction
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		a, err := r.Ledger().FindAccountByCustomer(ctx, customerID, model.LedgerAccountLoyalty)
		if errors.Is(err, repo.ErrNotFound) {
			out = []model.LedgerTransaction{}
			return nil
		}
		if err != nil {
			return dbError(err)
		}
		txs, err := r.Ledger().ListTransactions(ctx, a.ID)
		if err != nil {
			return dbError(err)
		}
		out = txs
		return nil
	})
	return out, err
}

// AccrueForOrderTx は確定した注文にポイントを付ける。
// 基準は実際に決済された額（ギフトカード分を除く）。ゲストは対象外。
func (u *RewardsUsecase) AccrueForOrderTx(ctx context.Context, r repo.TxRepos, o model.Order) (decimal.Decimal, error) {
	if o.CustomerID == nil || *o.CustomerID == "" {
		return decimal.Zero, nil
	}
	a, err := u.EnsureLoyaltyAccountTx(ctx, r, *o.CustomerID)
	if err != nil {
		return decimal.Zero, err
	}

	points := model.AccrualPoints(o.AmountDue, a.Tier)
	if points.IsZero() {
		return decimal.Zero, nil
	}

	t, err := u.ledger.PostTx(ctx, r, PostInput{
		AccountID:      a.ID,
		Delta:          points,
		Kind:           model.TxKindEarned,
		OrderID:        lo.ToPtr(o.ID),
		IdempotencyKey: "accrual:" + o.ID,
		Note:           "order " + o.ID,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return t.Delta, nil
}

// RedeemPoints はポイントを使う
func (u *RewardsUsecase) RedeemPoints(ctx context.Context, customerID string, points int64, orderRef *string) (model.LedgerTransaction, error) {
	if customerID == "" {
		return model.LedgerTransaction{}, newError(ErrUnauthorized, "unauthorized")
	}
	if points <= 0 {
		return model.LedgerTransaction{}, newError(ErrValidation, "points must be positive")
	}
	// 注文参照は注文 ID（UUID）のみ
	if orderRef != nil {
		if *orderRef == "" {
			orderRef = nil
		} else if _, err := uuid.Parse(*orderRef); err != nil {
			return model.LedgerTransaction{}, newError(ErrValidation, "order_ref must be an order id")
		}
	}

	var out model.LedgerTransaction
	err := u.ledger.withRetry(ctx, "rewards.RedeemPoints", func() error {
		return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			a, err := u.EnsureLoyaltyAccountTx(ctx, r, customerID)
			if err != nil {
				return err
			}
			in := PostInput{
				AccountID: a.ID,
				Delta:     decimal.NewFromInt(-points),
				Kind:      model.TxKindRedeemed,
				OrderID:   orderRef,
			}
			if orderRef != nil {
				in.IdempotencyKey = "redeem:" + *orderRef
			}
			t, err := u.ledger.PostTx(ctx, r, in)
			out = t
			return err
		})
	})
	return out, err
}

type ReferralCodeOutput struct {
	Code         string `json:"code"`
	RewardPoints int64  `json:"reward_points"`
	UsesCount    int64  `json:"uses_count"`
	IsActive     bool   `json:"is_active"`
}

func (u *RewardsUsecase) CreateReferralCode(ctx context.Context, referrerID string, rewardPoints int64) (ReferralCodeOutput, error) {
	if referrerID == "" {
		return ReferralCodeOutput{}, newError(ErrUnauthorized, "unauthorized")
	}
	if rewardPoints < 0 {
		return ReferralCodeOutput{}, newError(ErrValidation, "reward_points must not be negative")
	}
	if rewardPoints == 0 {
		rewardPoints = u.defaultReferralReward
	}

	c := model.ReferralCode{
		ID:           u.idGen.NewID(),
		Code:         "REF-" + shortCode(u.idGen.NewID()),
		ReferrerID:   referrerID,
		RewardPoints: rewardPoints,
		IsActive:     true,
		CreatedAt:    u.clock.Now(),
	}
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Referrals().CreateCode(ctx, c); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return newError(ErrPersistenceConflict, "code collision, retry")
			}
			return dbError(err)
		}
		return nil
	})
	if err != nil {
		return ReferralCodeOutput{}, err
	}
	return ReferralCodeOutput{Code: c.Code, RewardPoints: c.RewardPoints, IsActive: true}, nil
}

// RegisterReferral は被紹介者をコードに紐付ける（pending）
func (u *RewardsUsecase) RegisterReferral(ctx context.Context, code string, referredID string) (model.Referral, error) {
	if referredID == "" {
		return model.Referral{}, newError(ErrUnauthorized, "unauthorized")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return model.Referral{}, newError(ErrValidation, "code is required")
	}

	var out model.Referral
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		c, err := r.Referrals().FindCodeByCode(ctx, code)
		if err != nil {
			return dbError(err)
		}
		if !c.IsActive {
			return newError(ErrValidation, "referral code is inactive")
		}
		if c.ReferrerID == referredID {
			return newError(ErrValidation, "cannot refer yourself")
		}

		// 初回注文前の顧客だけ
		paid, err := r.Orders().CountPaidByCustomer(ctx, referredID)
		if err != nil {
			return dbError(err)
		}
		if paid > 0 {
			return newError(ErrValidation, "customer already has orders")
		}

		now := u.clock.Now()
		ref := model.Referral{
			ID:           u.idGen.NewID(),
			CodeID:       c.ID,
			ReferrerID:   c.ReferrerID,
			ReferredID:   referredID,
			Status:       model.ReferralStatusPending,
			RewardPoints: c.RewardPoints,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := r.Referrals().Create(ctx, ref); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return newError(ErrValidation, "customer already referred")
			}
			return dbError(err)
		}
		if err := r.Referrals().IncrementCodeUses(ctx, c.ID); err != nil {
			return dbError(err)
		}
		out = ref
		return nil
	})
	return out, err
}

// CompleteReferralTx は被紹介者の初回支払いで紹介を完了し、紹介者に報酬を付ける。
// 完了済み・報酬済みなら何もしない。
func (u *RewardsUsecase) CompleteReferralTx(ctx context.Context, r repo.TxRepos, o model.Order) (bool, error) {
	if o.CustomerID == nil || *o.CustomerID == "" {
		return false, nil
	}
	ref, err := r.Referrals().FindByReferredForUpdate(ctx, *o.CustomerID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dbError(err)
	}
	if ref.RewardGiven || ref.Status != model.ReferralStatusPending {
		return false, nil
	}

	updated, err := r.Referrals().MarkCompleted(ctx, ref.ID, o.ID, u.clock.Now())
	if err != nil {
		return false, dbError(err)
	}
	if !updated {
		return false, nil
	}

	if ref.RewardPoints <= 0 {
		return true, nil
	}
	a, err := u.EnsureLoyaltyAccountTx(ctx, r, ref.ReferrerID)
	if err != nil {
		return false, err
	}
	if _, err := u.ledger.PostTx(ctx, r, PostInput{
		AccountID:      a.ID,
		Delta:          decimal.NewFromInt(ref.RewardPoints),
		Kind:           model.TxKindEarned,
		OrderID:        lo.ToPtr(o.ID),
		IdempotencyKey: "referral:" + ref.ID,
		Note:           "referral " + ref.ID,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// 期限切れの pending を expired にする
func (u *RewardsUsecase) ExpireReferrals(ctx context.Context) (int64, error) {
	cutoff := u.clock.Now().Add(-u.referralTTL)
	var n int64
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		count, err := r.Referrals().ExpirePendingBefore(ctx, cutoff)
		if err != nil {
			return dbError(err)
		}
		n = count
		return nil
	})
	if err == nil && n > 0 {
		u.log.InfoContext(ctx, "referrals expired", slog.Int64("count", n))
	}
	return n, err
}

type IssueGiftCardInput struct {
	Code      string
	Amount    decimal.Decimal
	ExpiresAt *time.Time
}

type GiftCardOutput struct {
	Code           string          `json:"code"`
	Balance        decimal.Decimal `json:"balance"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	IsActive       bool            `json:"is_active"`
	Usable         bool            `json:"usable"`
}

// IssueGiftCard はカードと残高口座を作り、初期残高を issued で記帳する。
func (u *RewardsUsecase) IssueGiftCard(ctx context.Context, actorID string, in IssueGiftCardInput) (GiftCardOutput, error) {
	if actorID == "" {
		return GiftCardOutput{}, newError(ErrUnauthorized, "unauthorized")
	}
	if !in.Amount.IsPositive() {
		return GiftCardOutput{}, newError(ErrValidation, "amount must be positive")
	}
	if in.Amount.Exponent() < -2 {
		return GiftCardOutput{}, newError(ErrValidation, "amount has too many decimals")
	}
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if code == "" {
		code = "GC-" + shortCode(u.idGen.NewID())
	}
	now := u.clock.Now()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return GiftCardOutput{}, newError(ErrValidation, "expires_at must be in the future")
	}

	var out GiftCardOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		a, err := u.ledger.OpenAccountTx(ctx, r, model.LedgerAccountGiftCard, nil)
		if err != nil {
			return dbError(err)
		}
		card := model.GiftCard{
			ID:             u.idGen.NewID(),
			Code:           code,
			AccountID:      a.ID,
			InitialBalance: in.Amount,
			ExpiresAt:      in.ExpiresAt,
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := r.GiftCards().Create(ctx, card); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return newError(ErrValidation, "gift card code already exists")
			}
			return dbError(err)
		}
		t, err := u.ledger.PostTx(ctx, r, PostInput{
			AccountID:      a.ID,
			Delta:          in.Amount,
			Kind:           model.TxKindIssued,
			IdempotencyKey: "giftcard-issue:" + card.ID,
		})
		if err != nil {
			return err
		}

		afterJSON, _ := json.Marshal(map[string]string{"code": code, "amount": in.Amount.String()})
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorID:      actorID,
			Action:       model.AuditActionIssueGiftCard,
			ResourceType: model.AuditResourceGiftCard,
			ResourceID:   card.ID,
			BeforeJSON:   "{}",
			AfterJSON:    string(afterJSON),
			CreatedAt:    now,
		}); err != nil {
			return dbError(err)
		}
		out = toGiftCardOutput(card, t.BalanceAfter, now)
		return nil
	})
	return out, err
}

func (u *RewardsUsecase) GiftCardBalance(ctx context.Context, code string) (GiftCardOutput, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	var out GiftCardOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		card, err := r.GiftCards().FindByCode(ctx, code)
		if err != nil {
			return dbError(err)
		}
		a, err := r.Ledger().FindAccount(ctx, card.AccountID)
		if err != nil {
			return dbError(err)
		}
		out = toGiftCardOutput(card, a.Balance, u.clock.Now())
		return nil
	})
	return out, err
}

// RedeemGiftCardTx はチェックアウト中にカード残高を引く。
// requested が nil なら min(残高, limit) を使う。
func (u *RewardsUsecase) RedeemGiftCardTx(ctx context.Context, r repo.TxRepos, code string, requested *decimal.Decimal, limit decimal.Decimal, orderID string) (model.GiftCard, decimal.Decimal, error) {
	card, err := r.GiftCards().FindByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if errors.Is(err, repo.ErrNotFound) {
		return model.GiftCard{}, decimal.Zero, newError(ErrCardInactiveOrExpired, "gift card not found")
	}
	if err != nil {
		return model.GiftCard{}, decimal.Zero, dbError(err)
	}
	if !card.Usable(u.clock.Now()) {
		return model.GiftCard{}, decimal.Zero, newError(ErrCardInactiveOrExpired, "gift card inactive or expired")
	}

	var amount decimal.Decimal
	if requested != nil {
		if !requested.IsPositive() {
			return model.GiftCard{}, decimal.Zero, newError(ErrValidation, "gift card amount must be positive")
		}
		amount = decimal.Min(*requested, limit)
	} else {
		a, err := r.Ledger().FindAccount(ctx, card.AccountID)
		if err != nil {
			return model.GiftCard{}, decimal.Zero, dbError(err)
		}
		amount = decimal.Min(a.Balance, limit)
	}
	if !amount.IsPositive() {
		return model.GiftCard{}, decimal.Zero, newError(ErrInsufficientBalance, "gift card balance is zero")
	}

	t, err := u.ledger.PostTx(ctx, r, PostInput{
		AccountID:      card.AccountID,
		Delta:          amount.Neg(),
		Kind:           model.TxKindRedemption,
		OrderID:        lo.ToPtr(orderID),
		IdempotencyKey: "giftcard-redeem:" + orderID,
	})
	if err != nil {
		return model.GiftCard{}, decimal.Zero, err
	}
	return card, t.Delta.Neg(), nil
}

// RefundGiftCardTx は注文で使った分をカードに戻す（初期残高まで）
func (u *RewardsUsecase) RefundGiftCardTx(ctx context.Context, r repo.TxRepos, o model.Order) error {
	if o.GiftCardID == nil || !o.GiftCardAmount.IsPositive() {
		return nil
	}
	card, err := r.GiftCards().FindByID(ctx, *o.GiftCardID)
	if err != nil {
		return dbError(err)
	}
	a, err := r.Ledger().FindAccountForUpdate(ctx, card.AccountID)
	if err != nil {
		return dbError(err)
	}

	key := "giftcard-refund:" + o.ID
	if _, found, err := r.Ledger().FindTransactionByKey(ctx, key); err != nil {
		return dbError(err)
	} else if found {
		return nil
	}

	amount := decimal.Min(o.GiftCardAmount, card.InitialBalance.Sub(a.Balance))
	if !amount.IsPositive() {
		u.log.WarnContext(ctx, "gift card refund skipped, card already at initial balance",
			slog.String("order_id", o.ID), slog.String("gift_card_id", card.ID))
		return nil
	}
	_, err = u.ledger.PostTx(ctx, r, PostInput{
		AccountID:      card.AccountID,
		Delta:          amount,
		Kind:           model.TxKindRefund,
		OrderID:        lo.ToPtr(o.ID),
		IdempotencyKey: key,
	})
	return err
}

func toGiftCardOutput(card model.GiftCard, balance decimal.Decimal, now time.Time) GiftCardOutput {
	return GiftCardOutput{
		Code:           card.Code,
		Balance:        balance,
		InitialBalance: card.InitialBalance,
		ExpiresAt:      card.ExpiresAt,
		IsActive:       card.IsActive,
		Usable:         card.Usable(now),
	}
}

// UUID から8文字のコードを作る
func shortCode(id string) string {
	s := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(s) > 8 {
		s = s[:8]
	}
	return s
}
