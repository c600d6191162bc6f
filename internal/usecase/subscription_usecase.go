package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const (
	// 1回の RunDue で見る定期便の数
	runDueBatch = 100
	// 止まっていた分を追いかける上限（1件あたり）
	maxCatchUp = 8
	lockTTL    = 30 * time.Second
	// 取り消された注文を作り直す上限（配送1件あたり）
	maxOrderAttempts = 3
)

type SubscriptionUsecase struct {
	tx         repo.TransactionManager
	checkout   *CheckoutUsecase
	locker     Locker
	idGen      IDGenerator
	clock      Clock
	log        *slog.Logger
	maxRetries int
}

func NewSubscriptionUsecase(
	tx repo.TransactionManager,
	checkout *CheckoutUsecase,
	locker Locker,
	idGen IDGenerator,
	clock Clock,
	log *slog.Logger,
	maxRetries int,
) *SubscriptionUsecase {
	return &SubscriptionUsecase{
		tx:         tx,
		checkout:   checkout,
		locker:     locker,
		idGen:      idGen,
		clock:      clock,
		log:        log,
		maxRetries: maxRetries,
	}
}

type CreateSubscriptionInput struct {
	CustomerName  string
	CustomerEmail string
	ProductID     int64
	Plan          string
	Quantity      int64
	// nil なら今日
	StartDate *time.Time
}

type SubscriptionOutput struct {
	ID               string          `json:"id"`
	ProductID        int64           `json:"product_id"`
	Plan             string          `json:"plan"`
	Quantity         int64           `json:"quantity"`
	PricePerDelivery decimal.Decimal `json:"price_per_delivery"`
	MonthlyPrice     decimal.Decimal `json:"monthly_price"`
	Status           string          `json:"status"`
	NextDeliveryDate string          `json:"next_delivery_date"`
	Version          int64           `json:"version"`
}

func (u *SubscriptionUsecase) Create(ctx context.Context, customerID string, in CreateSubscriptionInput) (SubscriptionOutput, error) {
	if customerID == "" {
		return SubscriptionOutput{}, newError(ErrUnauthorized, "unauthorized")
	}
	plan := model.Plan(in.Plan)
	if !plan.Valid() {
		return SubscriptionOutput{}, newError(ErrValidation, "invalid plan")
	}
	if in.Quantity < 1 || in.Quantity > 100 {
		return SubscriptionOutput{}, newError(ErrValidation, "quantity must be between 1 and 100")
	}
	if in.CustomerName == "" || in.CustomerEmail == "" {
		return SubscriptionOutput{}, newError(ErrValidation, "customer name and email are required")
	}

	today := model.DateOf(u.clock.Now())
	start := today
	if in.StartDate != nil {
		start = model.DateOf(*in.StartDate)
		if start.Before(today) {
			return SubscriptionOutput{}, newError(ErrValidation, "start_date must not be in the past")
		}
	}

	var out SubscriptionOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Products().FindByID(ctx, in.ProductID)
		if errors.Is(err, repo.ErrNotFound) {
			return newError(ErrValidation, "product not found")
		}
		if err != nil {
			return dbError(err)
		}
		if !p.IsActive {
			return newError(ErrValidation, "product is not available")
		}

		now := u.clock.Now()
		s := model.Subscription{
			ID:               u.idGen.NewID(),
			CustomerID:       customerID,
			CustomerName:     in.CustomerName,
			CustomerEmail:    in.CustomerEmail,
			ProductID:        p.ID,
			Plan:             plan,
			Quantity:         in.Quantity,
			PricePerDelivery: p.Price.Mul(decimal.NewFromInt(in.Quantity)),
			Status:           model.SubscriptionStatusActive,
			NextDeliveryDate: start,
			Version:          1,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := r.Subscriptions().Create(ctx, s); err != nil {
			return dbError(err)
		}
		out = toSubscriptionOutput(s)
		return nil
	})
	return out, err
}

func (u *SubscriptionUsecase) List(ctx context.Context, customerID string) ([]SubscriptionOutput, error) {
	if customerID == "" {
		return nil, newError(ErrUnauthorized, "unauthorized")
	}
	var out []SubscriptionOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		subs, err := r.Subscriptions().ListByCustomer(ctx, customerID)
		if err != nil {
			return dbError(err)
		}
		out = lo.Map(subs, func(s model.Subscription, _ int) SubscriptionOutput { return toSubscriptionOutput(s) })
		return nil
	})
	return out, err
}

// 一時停止。配送予定日はそのまま
func (u *SubscriptionUsecase) Pause(ctx context.Context, customerID, subscriptionID string) (SubscriptionOutput, error) {
	return u.transition(ctx, customerID, subscriptionID, model.SubscriptionStatusActive, model.SubscriptionStatusPaused)
}

func (u *SubscriptionUsecase) Resume(ctx context.Context, customerID, subscriptionID string) (SubscriptionOutput, error) {
	return u.transition(ctx, customerID, subscriptionID, model.SubscriptionStatusPaused, model.SubscriptionStatusActive)
}

// 解約（元に戻せない）
func (u *SubscriptionUsecase) Cancel(ctx context.Context, customerID, subscriptionID string) (SubscriptionOutput, error) {
	return u.transition(ctx, customerID, subscriptionID, "", model.SubscriptionStatusCancelled)
}

// from が空なら cancelled 以外から
func (u *SubscriptionUsecase) transition(ctx context.Context, customerID, subscriptionID string, from, to model.SubscriptionStatus) (SubscriptionOutput, error) {
	if customerID == "" {
		return SubscriptionOutput{}, newError(ErrUnauthorized, "unauthorized")
	}
	var out SubscriptionOutput
	err := retryOnConflict(ctx, u.log, "subscription.transition", u.maxRetries, func() error {
		return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			s, err := u.ownedForUpdate(ctx, r, customerID, subscriptionID)
			if err != nil {
				return err
			}
			allowed := s.Status == from || (from == "" && s.Status != model.SubscriptionStatusCancelled)
			if !allowed {
				return newError(ErrInvalidTransition, fmt.Sprintf("subscription %s -> %s", s.Status, to))
			}
			version := s.Version
			s.Status = to
			if err := r.Subscriptions().Update(ctx, s, version); err != nil {
				return dbError(err)
			}
			s.Version++
			out = toSubscriptionOutput(s)
			return nil
		})
	})
	return out, err
}

func (u *SubscriptionUsecase) Deliveries(ctx context.Context, customerID, subscriptionID string) ([]model.SubscriptionDelivery, error) {
	if customerID == "" {
		return nil, newError(ErrUnauthorized, "unauthorized")
	}
	var out []model.SubscriptionDelivery
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		s, err := r.Subscriptions().FindByID(ctx, subscriptionID)
		if err != nil {
			return dbError(err)
		}
		if s.CustomerID != customerID {
			return newError(ErrNotFound, "not found")
		}
		ds, err := r.Deliveries().ListBySubscription(ctx, s.ID)
		if err != nil {
			return dbError(err)
		}
		out = ds
		return nil
	})
	return out, err
}

// SkipDelivery は予定中の配送を飛ばす。注文が作られた後は飛ばせない
func (u *SubscriptionUsecase) SkipDelivery(ctx context.Context, customerID, deliveryID string) (model.SubscriptionDelivery, error) {
	if customerID == "" {
		return model.SubscriptionDelivery{}, newError(ErrUnauthorized, "unauthorized")
	}
	var out model.SubscriptionDelivery
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		d, err := r.Deliveries().FindByID(ctx, deliveryID)
		if err != nil {
			return dbError(err)
		}
		if _, err := u.ownedForUpdate(ctx, r, customerID, d.SubscriptionID); err != nil {
			return err
		}
		if d.Status != model.DeliveryStatusScheduled || d.OrderID != nil {
			return newError(ErrInvalidTransition, fmt.Sprintf("delivery %s cannot be skipped", d.Status))
		}
		if err := r.Deliveries().UpdateStatus(ctx, d.ID, model.DeliveryStatusSkipped); err != nil {
			return dbError(err)
		}
		d.Status = model.DeliveryStatusSkipped
		out = d
		return nil
	})
	return out, err
}

func (u *SubscriptionUsecase) ownedForUpdate(ctx context.Context, r repo.TxRepos, customerID, subscriptionID string) (model.Subscription, error) {
	s, err := r.Subscriptions().FindByIDForUpdate(ctx, subscriptionID)
	if err != nil {
		return model.Subscription{}, dbError(err)
	}
	// 他人の定期便は見えない
	if s.CustomerID != customerID {
		return model.Subscription{}, newError(ErrNotFound, "not found")
	}
	return s, nil
}

// GenerateDelivery は due の配送を作り、次回配送日を進める。
// 同じ日付で2回呼んでも配送は1件だけ（2回目は ErrDuplicateSchedule）。
func (u *SubscriptionUsecase) GenerateDelivery(ctx context.Context, subscriptionID string, due time.Time) (model.SubscriptionDelivery, error) {
	due = model.DateOf(due)
	var out model.SubscriptionDelivery
	err := retryOnConflict(ctx, u.log, "subscription.GenerateDelivery", u.maxRetries, func() error {
		return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			d, err := u.generateDeliveryTx(ctx, r, subscriptionID, due)
			out = d
			return err
		})
	})
	return out, err
}

func (u *SubscriptionUsecase) generateDeliveryTx(ctx context.Context, r repo.TxRepos, subscriptionID string, due time.Time) (model.SubscriptionDelivery, error) {
	s, err := r.Subscriptions().FindByIDForUpdate(ctx, subscriptionID)
	if err != nil {
		return model.SubscriptionDelivery{}, dbError(err)
	}
	if s.Status != model.SubscriptionStatusActive {
		return model.SubscriptionDelivery{}, newError(ErrSubscriptionInactive, "subscription is "+string(s.Status))
	}

	next := model.DateOf(s.NextDeliveryDate)
	switch {
	case due.Before(next):
		return model.SubscriptionDelivery{}, newError(ErrDuplicateSchedule, "delivery already generated for "+due.Format(time.DateOnly))
	case due.After(next):
		return model.SubscriptionDelivery{}, newError(ErrValidation, "next delivery is "+next.Format(time.DateOnly))
	}

	now := u.clock.Now()
	d := model.SubscriptionDelivery{
		ID:             u.idGen.NewID(),
		SubscriptionID: s.ID,
		ScheduledDate:  due,
		Status:         model.DeliveryStatusScheduled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.Deliveries().Create(ctx, d); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return model.SubscriptionDelivery{}, newError(ErrDuplicateSchedule, "delivery already generated for "+due.Format(time.DateOnly))
		}
		return model.SubscriptionDelivery{}, dbError(err)
	}

	version := s.Version
	s.NextDeliveryDate = s.Advance()
	if err := r.Subscriptions().Update(ctx, s, version); err != nil {
		return model.SubscriptionDelivery{}, dbError(err)
	}
	return d, nil
}

type RunDueResult struct {
	Subscriptions int      `json:"subscriptions"`
	Deliveries    int      `json:"deliveries"`
	Orders        int      `json:"orders"`
	Retried       int      `json:"retried"`
	Locked        int      `json:"locked"`
	Failures      []string `json:"failures"`
}

// RunDue は asOf までに予定日が来た定期便の配送と注文を作る。
// 前回注文まで進めなかった配送も拾い直す。
// 定期便ごとにロックを取り、取れなければ他のインスタンスに任せる。
func (u *SubscriptionUsecase) RunDue(ctx context.Context, asOf time.Time) (RunDueResult, error) {
	asOf = model.DateOf(asOf)
	res := RunDueResult{Failures: []string{}}

	var (
		due       []model.Subscription
		unordered []model.SubscriptionDelivery
	)
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		subs, err := r.Subscriptions().ListDue(ctx, asOf, runDueBatch)
		if err != nil {
			return dbError(err)
		}
		ds, err := r.Deliveries().ListUnordered(ctx, asOf, runDueBatch)
		if err != nil {
			return dbError(err)
		}
		due, unordered = subs, ds
		return nil
	})
	if err != nil {
		return res, err
	}

	for _, d := range unordered {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		u.withSubscriptionLock(ctx, d.SubscriptionID, &res, func() {
			u.retryDelivery(ctx, d, &res)
		})
	}

	for _, s := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Subscriptions++
		u.withSubscriptionLock(ctx, s.ID, &res, func() {
			u.runSubscription(ctx, s, asOf, &res)
		})
	}

	u.log.InfoContext(ctx, "subscriptions run",
		slog.String("as_of", asOf.Format(time.DateOnly)),
		slog.Int("subscriptions", res.Subscriptions),
		slog.Int("deliveries", res.Deliveries),
		slog.Int("orders", res.Orders),
		slog.Int("retried", res.Retried),
		slog.Int("failures", len(res.Failures)))
	return res, nil
}

func (u *SubscriptionUsecase) withSubscriptionLock(ctx context.Context, subscriptionID string, res *RunDueResult, fn func()) {
	unlock, err := u.locker.Lock(ctx, "subscription:"+subscriptionID, lockTTL)
	if errors.Is(err, ErrLockNotAcquired) {
		res.Locked++
		return
	}
	if err != nil {
		res.Failures = append(res.Failures, subscriptionID+": "+err.Error())
		return
	}
	fn()
	if err := unlock(context.WithoutCancel(ctx)); err != nil {
		u.log.WarnContext(ctx, "unlock failed", slog.String("subscription_id", subscriptionID), slog.String("error", err.Error()))
	}
}

// ロック取得までに状態が変わっていることがあるので読み直す
func (u *SubscriptionUsecase) retryDelivery(ctx context.Context, d model.SubscriptionDelivery, res *RunDueResult) {
	var (
		s       model.Subscription
		current model.SubscriptionDelivery
	)
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		if current, err = r.Deliveries().FindByID(ctx, d.ID); err != nil {
			return dbError(err)
		}
		if s, err = r.Subscriptions().FindByID(ctx, d.SubscriptionID); err != nil {
			return dbError(err)
		}
		return nil
	})
	if err != nil {
		res.Failures = append(res.Failures, d.SubscriptionID+": "+errorMessage(err))
		return
	}
	if current.Status != model.DeliveryStatusScheduled || current.OrderID != nil {
		return
	}
	if s.Status != model.SubscriptionStatusActive {
		return
	}

	if err := u.orderDelivery(ctx, s, current); err != nil {
		res.Failures = append(res.Failures, s.ID+": "+errorMessage(err))
		return
	}
	res.Retried++
	res.Orders++
}

func (u *SubscriptionUsecase) runSubscription(ctx context.Context, s model.Subscription, asOf time.Time, res *RunDueResult) {
	date := model.DateOf(s.NextDeliveryDate)
	for i := 0; i < maxCatchUp && !date.After(asOf); i++ {
		d, err := u.GenerateDelivery(ctx, s.ID, date)
		switch {
		case err == nil:
			res.Deliveries++
		case errors.Is(err, ErrDuplicateSchedule), errors.Is(err, ErrSubscriptionInactive):
			// 他で処理済み
			return
		default:
			res.Failures = append(res.Failures, s.ID+": "+errorMessage(err))
			return
		}

		if err := u.orderDelivery(ctx, s, d); err != nil {
			res.Failures = append(res.Failures, s.ID+": "+errorMessage(err))
		} else {
			res.Orders++
		}
		date = s.Plan.Next(date)
	}
}

// 配送の注文をチェックアウトと同じ経路で作る。
// キーは配送日から決まるので、やり直しても注文は増えない。
// 決済セッション失敗などで取り消し済みなら、回数付きのキーで作り直す。
func (u *SubscriptionUsecase) orderDelivery(ctx context.Context, s model.Subscription, d model.SubscriptionDelivery) error {
	base := fmt.Sprintf("subscription:%s:%s", s.ID, d.ScheduledDate.Format(time.DateOnly))
	for attempt := 0; attempt < maxOrderAttempts; attempt++ {
		key := base
		if attempt > 0 {
			key = fmt.Sprintf("%s:%d", base, attempt)
		}
		out, err := u.checkout.Checkout(ctx, CheckoutInput{
			Items: []CartLine{{ProductID: s.ProductID, Quantity: s.Quantity}},
			Customer: CustomerInfo{
				CustomerID: lo.ToPtr(s.CustomerID),
				Name:       s.CustomerName,
				Email:      s.CustomerEmail,
			},
			IdempotencyKey:         key,
			SubscriptionDeliveryID: lo.ToPtr(d.ID),
		})
		if err != nil {
			u.log.WarnContext(ctx, "subscription order failed",
				slog.String("subscription_id", s.ID),
				slog.String("delivery_id", d.ID),
				slog.String("error", errorMessage(err)))
			return err
		}
		if out.Replayed && out.Status == string(model.OrderStatusCancelled) {
			continue
		}
		return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			if err := r.Deliveries().AttachOrder(ctx, d.ID, out.OrderID); err != nil {
				return dbError(err)
			}
			return nil
		})
	}
	return newError(ErrInternal, fmt.Sprintf("delivery %s: order attempts exhausted", d.ID))
}

func toSubscriptionOutput(s model.Subscription) SubscriptionOutput {
	return SubscriptionOutput{
		ID:               s.ID,
		ProductID:        s.ProductID,
		Plan:             string(s.Plan),
		Quantity:         s.Quantity,
		PricePerDelivery: s.PricePerDelivery,
		MonthlyPrice:     s.MonthlyPrice(),
		Status:           string(s.Status),
		NextDeliveryDate: s.NextDeliveryDate.Format(time.DateOnly),
		Version:          s.Version,
	}
}
