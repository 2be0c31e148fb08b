package mt5

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Максимальный размер кадра от моста (16 МБ), защита от мусора в потоке
const maxFrameSize = 16 << 20

// BridgeClient реализует ManagerAPI поверх бинарного протокола менеджер-моста:
// кадр = 4 байта длины (big-endian) + JSON тело. Первый кадр после dial -
// авторизация менеджера. Запрос-ответ строго попарно, поэтому вызовы
// сериализуются мьютексом.
type BridgeClient struct {
	logger      *slog.Logger
	callTimeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

func NewBridgeClient(logger *slog.Logger, callTimeout time.Duration) *BridgeClient {
	return &BridgeClient{
		logger:      logger,
		callTimeout: callTimeout,
	}
}

type bridgeRequest struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type bridgeReply struct {
	OK      bool            `json:"ok"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Login подключается к мосту и авторизует менеджера
func (c *BridgeClient) Login(ctx context.Context, host string, port int, login uint64, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	dialer := net.Dialer{Timeout: c.callTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	if err != nil {
		return fmt.Errorf("dial bridge: %w", err)
	}

	c.conn = conn

	err = c.callLocked(ctx, "auth", map[string]any{
		"login":    login,
		"password": password,
	}, nil)
	if err != nil {
		conn.Close()
		c.conn = nil

		return fmt.Errorf("bridge auth: %w", err)
	}

	return nil
}

// Logout закрывает соединение с мостом
func (c *BridgeClient) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil

	return err
}

// call выполняет один запрос-ответ к мосту
func (c *BridgeClient) call(ctx context.Context, method string, params any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.callLocked(ctx, method, params, out)
}

func (c *BridgeClient) callLocked(ctx context.Context, method string, params any, out any) error {
	if c.conn == nil {
		return fmt.Errorf("%w: bridge not connected", ErrConnection)
	}

	deadline := time.Now().Add(c.callTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	if err := writeFrame(c.conn, bridgeRequest{Method: method, Params: params}); err != nil {
		c.dropConn()

		return fmt.Errorf("%w: write %s: %v", ErrConnection, method, err)
	}

	var reply bridgeReply
	if err := readFrame(c.conn, &reply); err != nil {
		c.dropConn()

		return fmt.Errorf("%w: read %s: %v", ErrConnection, method, err)
	}

	if !reply.OK {
		return &RemoteError{Code: reply.Code, Message: reply.Message}
	}

	if out != nil && len(reply.Data) > 0 {
		if err := json.Unmarshal(reply.Data, out); err != nil {
			return fmt.Errorf("decode %s reply: %w", method, err)
		}
	}

	return nil
}

func (c *BridgeClient) dropConn() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func writeFrame(conn net.Conn, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(body)))
	copy(frame[4:], body)

	_, err = conn.Write(frame)

	return err
}

func readFrame(conn net.Conn, out any) error {
	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameSize {
		return errors.New("frame too large")
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(conn, body); err != nil {
		return err
	}

	return json.Unmarshal(body, out)
}

func (c *BridgeClient) UserAdd(ctx context.Context, user *RawUser, masterPass, investorPass string) (*RawUser, error) {
	var created RawUser

	err := c.call(ctx, "user_add", map[string]any{
		"user":          user,
		"password":      masterPass,
		"password_inv":  investorPass,
	}, &created)
	if err != nil {
		return nil, err
	}

	return &created, nil
}

func (c *BridgeClient) UserRequest(ctx context.Context, login int64) (*RawUser, error) {
	var user RawUser

	err := c.call(ctx, "user_request", map[string]any{"login": login}, &user)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (c *BridgeClient) UserUpdate(ctx context.Context, user *RawUser) error {
	return c.call(ctx, "user_update", map[string]any{"user": user}, nil)
}

func (c *BridgeClient) UserGetByGroup(ctx context.Context, mask string) ([]RawUser, error) {
	var users []RawUser

	err := c.call(ctx, "user_get_by_group", map[string]any{"group": mask}, &users)
	if err != nil {
		return nil, err
	}

	return users, nil
}

func (c *BridgeClient) UserAccountGet(ctx context.Context, login int64) (*RawAccount, error) {
	var account RawAccount

	err := c.call(ctx, "user_account_get", map[string]any{"login": login}, &account)
	if err != nil {
		return nil, err
	}

	return &account, nil
}

func (c *BridgeClient) PasswordChange(ctx context.Context, login int64, passType int, newPassword string) error {
	return c.call(ctx, "user_password_change", map[string]any{
		"login":    login,
		"type":     passType,
		"password": newPassword,
	}, nil)
}

func (c *BridgeClient) DealerBalance(ctx context.Context, login int64, amount float64, action int, comment string) (int64, error) {
	var result struct {
		Deal int64 `json:"deal"`
	}

	err := c.call(ctx, "dealer_balance", map[string]any{
		"login":   login,
		"amount":  amount,
		"action":  action,
		"comment": comment,
	}, &result)
	if err != nil {
		return 0, err
	}

	return result.Deal, nil
}

func (c *BridgeClient) DailyRequestByLogins(ctx context.Context, logins []int64, from, to int64) ([]RawDaily, error) {
	var reports []RawDaily

	err := c.call(ctx, "daily_request_by_logins", map[string]any{
		"logins": logins,
		"from":   from,
		"to":     to,
	}, &reports)
	if err != nil {
		return nil, err
	}

	return reports, nil
}

func (c *BridgeClient) DailyRequestLight(ctx context.Context, login int64, from, to int64) ([]RawDaily, error) {
	var reports []RawDaily

	err := c.call(ctx, "daily_request_light", map[string]any{
		"login": login,
		"from":  from,
		"to":    to,
	}, &reports)
	if err != nil {
		return nil, err
	}

	return reports, nil
}

func (c *BridgeClient) DailyRequestLightByGroup(ctx context.Context, mask string, from, to int64) ([]RawDaily, error) {
	var reports []RawDaily

	err := c.call(ctx, "daily_request_light_by_group", map[string]any{
		"group": mask,
		"from":  from,
		"to":    to,
	}, &reports)
	if err != nil {
		return nil, err
	}

	return reports, nil
}

func (c *BridgeClient) DealRequest(ctx context.Context, login int64, from, to int64) ([]RawDeal, error) {
	var deals []RawDeal

	err := c.call(ctx, "deal_request", map[string]any{
		"login": login,
		"from":  from,
		"to":    to,
	}, &deals)
	if err != nil {
		return nil, err
	}

	return deals, nil
}

func (c *BridgeClient) DealRequestByGroup(ctx context.Context, mask string, from, to int64) ([]RawDeal, error) {
	var deals []RawDeal

	err := c.call(ctx, "deal_request_by_group", map[string]any{
		"group": mask,
		"from":  from,
		"to":    to,
	}, &deals)
	if err != nil {
		return nil, err
	}

	return deals, nil
}

func (c *BridgeClient) PositionGetByLogin(ctx context.Context, login int64) ([]RawPosition, error) {
	var positions []RawPosition

	err := c.call(ctx, "position_get_by_login", map[string]any{"login": login}, &positions)
	if err != nil {
		return nil, err
	}

	return positions, nil
}

func (c *BridgeClient) PositionGetByGroup(ctx context.Context, mask string) ([]RawPosition, error) {
	var positions []RawPosition

	err := c.call(ctx, "position_get_by_group", map[string]any{"group": mask}, &positions)
	if err != nil {
		return nil, err
	}

	return positions, nil
}
