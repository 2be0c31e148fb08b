// Package stream - realtime трансляции состояния аккаунтов для WebSocket
package stream

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mt5_backoffice/internal/metrics"
	"mt5_backoffice/internal/mt5"
)

// Лимиты дашборда
const (
	maxMarginCalls        = 10
	maxDashboardPositions = 50
)

// Gateway - операции шлюза, нужные трансляциям
type Gateway interface {
	GetRealtimeSnapshot(ctx context.Context, login int64, group string) ([]mt5.RealtimeEquity, error)
	GetOpenPositions(ctx context.Context, login int64, symbol string) ([]mt5.Position, error)
}

// Message - исходящее сообщение подписки. Ошибки опроса передаются
// in-band, подписка при этом не рвется.
type Message struct {
	Type        string              `json:"type"` // account_update | dashboard_update | error | evicted
	Login       int64               `json:"login,omitempty"`
	Account     *mt5.RealtimeEquity `json:"account,omitempty"`
	Positions   []mt5.Position      `json:"positions,omitempty"`
	Stats       *DashboardStats     `json:"stats,omitempty"`
	MarginCalls []MarginCall        `json:"margin_calls,omitempty"`
	Error       string              `json:"error,omitempty"`
	Timestamp   int64               `json:"timestamp"`
}

// DashboardStats - сводка по всем аккаунтам
type DashboardStats struct {
	Accounts            int     `json:"accounts"`
	TotalBalance        float64 `json:"total_balance"`
	TotalEquity         float64 `json:"total_equity"`
	TotalCredit         float64 `json:"total_credit"`
	TotalMargin         float64 `json:"total_margin"`
	TotalFloatingProfit float64 `json:"total_floating_profit"`
	OpenPositions       int     `json:"open_positions"`
	TotalVolume         float64 `json:"total_volume"`
}

// MarginCall - аккаунт с уровнем маржи ниже 100%
type MarginCall struct {
	Login       int64   `json:"login"`
	Name        string  `json:"name"`
	Equity      float64 `json:"equity"`
	Margin      float64 `json:"margin"`
	MarginLevel float64 `json:"margin_level"`
	MarginFree  float64 `json:"margin_free"`
}

// Stream - одна подписка. Сообщения читаются из C; канал закрывается
// при отмене контекста, вызове Close или вытеснении новой подпиской
// (последним сообщением придет type=evicted).
type Stream struct {
	C <-chan Message

	ctx    context.Context
	out    chan Message
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	evicted bool
}

// send публикует сообщение; false - подписка остановлена
func (s *Stream) send(msg Message) bool {
	select {
	case s.out <- msg:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Close останавливает подписку
func (s *Stream) Close() {
	s.cancel()
	<-s.done
}

func (s *Stream) evict() {
	s.mu.Lock()
	s.evicted = true
	s.mu.Unlock()

	s.cancel()
	<-s.done
}

func (s *Stream) wasEvicted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.evicted
}

// Streamer раздает realtime подписки. На один логин живет ровно одна
// трансляция: новая подписка вытесняет старую. Дашборд-подписок может
// быть сколько угодно, каждая под своим id.
type Streamer struct {
	gateway  Gateway
	logger   *slog.Logger
	interval time.Duration

	mu         sync.Mutex
	accounts   map[int64]*Stream
	dashboards map[string]*Stream
}

func NewStreamer(gateway Gateway, interval time.Duration, logger *slog.Logger) *Streamer {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	return &Streamer{
		gateway:    gateway,
		logger:     logger,
		interval:   interval,
		accounts:   make(map[int64]*Stream),
		dashboards: make(map[string]*Stream),
	}
}

// SubscribeAccount открывает трансляцию по одному логину.
// Существующая трансляция этого логина закрывается до того, как новая
// начнет публиковать.
func (s *Streamer) SubscribeAccount(ctx context.Context, login int64) *Stream {
	s.mu.Lock()
	old := s.accounts[login]
	delete(s.accounts, login)
	s.mu.Unlock()

	if old != nil {
		s.logger.Info("⚠️  Account stream evicted by new subscription",
			slog.Int64("login", login))

		old.evict()
	}

	stream := s.newStream(ctx)

	s.mu.Lock()
	s.accounts[login] = stream
	s.mu.Unlock()

	metrics.StreamSubscribers.WithLabelValues("account").Inc()

	go s.runAccount(stream, login)

	return stream
}

// SubscribeDashboard открывает трансляцию сводки по всем аккаунтам
func (s *Streamer) SubscribeDashboard(ctx context.Context) *Stream {
	stream := s.newStream(ctx)
	id := uuid.NewString()

	s.mu.Lock()
	s.dashboards[id] = stream
	s.mu.Unlock()

	metrics.StreamSubscribers.WithLabelValues("dashboard").Inc()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.dashboards, id)
			s.mu.Unlock()
		}()

		s.runDashboard(stream)
	}()

	return stream
}

func (s *Streamer) newStream(parent context.Context) *Stream {
	ctx, cancel := context.WithCancel(parent)

	out := make(chan Message, 8)

	return &Stream{
		C:      out,
		ctx:    ctx,
		out:    out,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (s *Streamer) runAccount(stream *Stream, login int64) {
	defer s.finish(stream, "account", func() {
		s.mu.Lock()
		if s.accounts[login] == stream {
			delete(s.accounts, login)
		}
		s.mu.Unlock()
	})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		msg := s.accountTick(stream.ctx, login)
		if !stream.send(msg) {
			return
		}

		select {
		case <-ticker.C:
		case <-stream.ctx.Done():
			return
		}
	}
}

func (s *Streamer) accountTick(ctx context.Context, login int64) Message {
	now := time.Now().UTC().Unix()

	snapshots, err := s.gateway.GetRealtimeSnapshot(ctx, login, "")
	if err != nil {
		return Message{Type: "error", Login: login, Error: err.Error(), Timestamp: now}
	}

	positions, err := s.gateway.GetOpenPositions(ctx, login, "")
	if err != nil {
		return Message{Type: "error", Login: login, Error: err.Error(), Timestamp: now}
	}

	msg := Message{Type: "account_update", Login: login, Positions: positions, Timestamp: now}
	if len(snapshots) > 0 {
		msg.Account = &snapshots[0]
	}

	return msg
}

func (s *Streamer) runDashboard(stream *Stream) {
	defer s.finish(stream, "dashboard", nil)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		msg := s.dashboardTick(stream.ctx)
		if !stream.send(msg) {
			return
		}

		select {
		case <-ticker.C:
		case <-stream.ctx.Done():
			return
		}
	}
}

func (s *Streamer) dashboardTick(ctx context.Context) Message {
	now := time.Now().UTC().Unix()

	snapshots, err := s.gateway.GetRealtimeSnapshot(ctx, 0, "")
	if err != nil {
		return Message{Type: "error", Error: err.Error(), Timestamp: now}
	}

	positions, err := s.gateway.GetOpenPositions(ctx, 0, "")
	if err != nil {
		return Message{Type: "error", Error: err.Error(), Timestamp: now}
	}

	stats := &DashboardStats{Accounts: len(snapshots), OpenPositions: len(positions)}

	for i := range snapshots {
		rt := &snapshots[i]

		stats.TotalBalance += rt.Balance
		stats.TotalEquity += rt.Equity
		stats.TotalCredit += rt.Credit
		stats.TotalMargin += rt.Margin
		stats.TotalFloatingProfit += rt.FloatingProfit
	}

	for i := range positions {
		stats.TotalVolume += positions[i].Volume
	}

	if len(positions) > maxDashboardPositions {
		positions = positions[:maxDashboardPositions]
	}

	return Message{
		Type:        "dashboard_update",
		Stats:       stats,
		MarginCalls: marginCalls(snapshots),
		Positions:   positions,
		Timestamp:   now,
	}
}

// marginCalls отбирает аккаунты с уровнем маржи ниже 100%, худшие первыми
func marginCalls(snapshots []mt5.RealtimeEquity) []MarginCall {
	var calls []MarginCall

	for i := range snapshots {
		rt := &snapshots[i]
		if rt.Margin <= 0 {
			continue
		}

		level := rt.Equity / rt.Margin * 100
		if level >= 100 {
			continue
		}

		calls = append(calls, MarginCall{
			Login:       rt.Login,
			Name:        rt.Name,
			Equity:      rt.Equity,
			Margin:      rt.Margin,
			MarginLevel: level,
			MarginFree:  rt.MarginFree,
		})
	}

	sort.Slice(calls, func(i, j int) bool { return calls[i].MarginLevel < calls[j].MarginLevel })

	if len(calls) > maxMarginCalls {
		calls = calls[:maxMarginCalls]
	}

	return calls
}

// finish закрывает канал подписки; вытесненной подписке последним
// уходит сообщение evicted
func (s *Streamer) finish(stream *Stream, kind string, cleanup func()) {
	if cleanup != nil {
		cleanup()
	}

	if stream.wasEvicted() {
		msg := Message{Type: "evicted", Timestamp: time.Now().UTC().Unix()}

		// Продюсер уже остановлен, писатель здесь один. Если буфер забит
		// непрочитанными обновлениями, жертвуем самым старым: сигнал о
		// вытеснении терять нельзя
		for sent := false; !sent; {
			select {
			case stream.out <- msg:
				sent = true
			default:
				select {
				case <-stream.out:
				default:
				}
			}
		}
	}

	close(stream.out)
	close(stream.done)

	metrics.StreamSubscribers.WithLabelValues(kind).Dec()
}

// Shutdown закрывает все активные подписки
func (s *Streamer) Shutdown() {
	s.mu.Lock()

	var streams []*Stream

	for _, st := range s.accounts {
		streams = append(streams, st)
	}

	for _, st := range s.dashboards {
		streams = append(streams, st)
	}

	s.accounts = make(map[int64]*Stream)
	s.dashboards = make(map[string]*Stream)

	s.mu.Unlock()

	for _, st := range streams {
		st.Close()
	}

	s.logger.Info("🛑 All realtime streams closed")
}
