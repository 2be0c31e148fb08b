// Package pnl - расчет дневного P&L по дневным отчетам и истории сделок
package pnl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"mt5_backoffice/internal/mt5"
)

// ErrNoReport - за запрошенную дату нет дневного отчета (выходной или
// аккаунт еще не существовал)
var ErrNoReport = errors.New("pnl: no daily report for date")

// Gateway - операции шлюза, нужные расчету
type Gateway interface {
	GetDailyReports(ctx context.Context, login int64, from, to time.Time, group string) ([]mt5.DailyReport, error)
	GetDealHistory(ctx context.Context, login int64, from, to time.Time) ([]mt5.DealRecord, error)
}

// Engine считает дневной P&L. Сам ничего не хранит, источники данных -
// дневные отчеты сервера и балансовые транзакции за день.
type Engine struct {
	gateway Gateway
	logger  *slog.Logger
}

func NewEngine(gateway Gateway, logger *slog.Logger) *Engine {
	return &Engine{gateway: gateway, logger: logger}
}

// totals - аккумулятор балансовых транзакций за день
type totals struct {
	deposit    float64
	withdrawal float64
	netDeposit float64
	credit     float64
	promotion  float64
	rebate     float64
}

// accumulate раскладывает транзакции по корзинам расчета.
// Тегированные транзакции идут по тегу; нетегированные депозиты и выводы
// двигают нетто-депозит, кредитные и корректирующие действия без тега
// попадают в кредитную ветку.
func accumulate(deals []mt5.DealRecord) totals {
	var t totals

	for i := range deals {
		d := &deals[i]

		switch d.Tag {
		case mt5.TagDeposit:
			t.deposit += math.Abs(d.Amount)
			t.netDeposit += d.Amount
		case mt5.TagWithdrawal:
			t.withdrawal += math.Abs(d.Amount)
			t.netDeposit += d.Amount
		case mt5.TagRebate:
			// Ребейт входит в кредитную корзину и через нее вычитается
			// из equity P&L
			t.rebate += d.Amount
			t.credit += d.Amount
		case mt5.TagPromotion:
			// Промо считается только в плюс: списание промо-кредита
			// не уменьшает промо-корзину
			t.promotion += math.Max(d.Amount, 0)
			t.credit += d.Amount
		default:
			switch d.Action {
			case "DEPOSIT", "WITHDRAWAL":
				// Нетегированные депозиты и выводы двигают только нетто:
				// валовые корзины заполняются по тегам
				t.netDeposit += d.Amount
			case "CREDIT", "CREDIT_OUT", "CHARGE", "CORRECTION":
				t.credit += d.Amount
			}
		}
	}

	return t
}

// build собирает итоговый расчет по отчету и транзакциям дня.
//
// equityPnL = presentEquity - equityPrevDay - netDeposit - netCreditPromotion - totalIB
// netPnL    = equityPnL - promotion
func build(report *mt5.DailyReport, deals []mt5.DealRecord, date string) *mt5.DailyPnL {
	t := accumulate(deals)

	netCreditPromotion := t.credit
	totalIB := report.DailyAgent

	equityPnL := report.PresentEquity - report.EquityPrevDay - t.netDeposit - netCreditPromotion - totalIB
	netPnL := equityPnL - t.promotion

	return &mt5.DailyPnL{
		Login:              report.Login,
		Date:               date,
		PresentEquity:      report.PresentEquity,
		EquityPrevDay:      report.EquityPrevDay,
		Deposit:            t.deposit,
		Withdrawal:         t.withdrawal,
		NetDeposit:         t.netDeposit,
		Credit:             t.credit,
		Promotion:          t.promotion,
		NetCreditPromotion: netCreditPromotion,
		TotalIB:            totalIB,
		Rebate:             t.rebate,
		EquityPnL:          equityPnL,
		NetPnL:             netPnL,
		Group:              report.Group,
		Currency:           report.Currency,
	}
}

// CalculateDaily считает P&L одного аккаунта за календарный день (UTC)
func (e *Engine) CalculateDaily(ctx context.Context, date time.Time, login int64) (*mt5.DailyPnL, error) {
	day := date.UTC().Format("2006-01-02")

	var (
		reports []mt5.DailyReport
		deals   []mt5.DealRecord
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		reports, err = e.gateway.GetDailyReports(gctx, login, date, date, "")

		return err
	})

	g.Go(func() error {
		var err error

		deals, err = e.gateway.GetDealHistory(gctx, login, date, date)

		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch pnl inputs for %d: %w", login, err)
	}

	var report *mt5.DailyReport

	for i := range reports {
		if reports[i].Date == day && reports[i].Login == login {
			report = &reports[i]

			break
		}
	}

	if report == nil {
		return nil, fmt.Errorf("%w: login %d, %s", ErrNoReport, login, day)
	}

	return build(report, deals, day), nil
}

// CalculateAllAccounts считает P&L всех аккаунтов за день.
// Выход отсортирован по логину. Аккаунты без отчета пропускаются.
func (e *Engine) CalculateAllAccounts(ctx context.Context, date time.Time) ([]mt5.DailyPnL, error) {
	day := date.UTC().Format("2006-01-02")

	var (
		reports []mt5.DailyReport
		deals   []mt5.DealRecord
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		reports, err = e.gateway.GetDailyReports(gctx, 0, date, date, "")

		return err
	})

	g.Go(func() error {
		var err error

		deals, err = e.gateway.GetDealHistory(gctx, 0, date, date)

		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch pnl inputs: %w", err)
	}

	dealsByLogin := make(map[int64][]mt5.DealRecord)
	for i := range deals {
		dealsByLogin[deals[i].Login] = append(dealsByLogin[deals[i].Login], deals[i])
	}

	var results []mt5.DailyPnL

	for i := range reports {
		r := &reports[i]
		if r.Date != day {
			continue
		}

		results = append(results, *build(r, dealsByLogin[r.Login], day))
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Login < results[j].Login })

	e.logger.Info("✅ Daily P&L calculated",
		slog.String("date", day),
		slog.Int("accounts", len(results)))

	return results, nil
}

// AggregateInstitution сворачивает расчеты аккаунтов в один агрегат
// организации (login 0, группа ALL). Каждое поле - сумма по аккаунтам.
func AggregateInstitution(perAccount []mt5.DailyPnL, date time.Time) *mt5.DailyPnL {
	total := &mt5.DailyPnL{
		Login:    0,
		Date:     date.UTC().Format("2006-01-02"),
		Group:    "ALL",
		Currency: "USD",
	}

	for i := range perAccount {
		p := &perAccount[i]

		total.PresentEquity += p.PresentEquity
		total.EquityPrevDay += p.EquityPrevDay
		total.Deposit += p.Deposit
		total.Withdrawal += p.Withdrawal
		total.NetDeposit += p.NetDeposit
		total.Credit += p.Credit
		total.Promotion += p.Promotion
		total.NetCreditPromotion += p.NetCreditPromotion
		total.TotalIB += p.TotalIB
		total.Rebate += p.Rebate
		total.EquityPnL += p.EquityPnL
		total.NetPnL += p.NetPnL
	}

	return total
}

// CalculateRange считает P&L одного аккаунта за период [from, to].
// Дни без отчета пропускаются.
func (e *Engine) CalculateRange(ctx context.Context, from, to time.Time, login int64) ([]mt5.DailyPnL, error) {
	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC().Truncate(24 * time.Hour)

	var results []mt5.DailyPnL

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		pnl, err := e.CalculateDaily(ctx, day, login)
		if err != nil {
			if errors.Is(err, ErrNoReport) {
				continue
			}

			return nil, err
		}

		results = append(results, *pnl)
	}

	return results, nil
}
