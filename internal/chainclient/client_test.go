package chainclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danvaneijck/chance-staking-operator/internal/errs"
)

type fakeTransport struct {
	mu            sync.Mutex
	queryResp     []byte
	queryErr      error
	sequence      uint64
	broadcastCode uint32
	broadcastLog  string
	broadcastErr  error

	inFlight int32 // detects overlapping Execute broadcasts
	maxInFlight int32
}

func (f *fakeTransport) Query(ctx context.Context, contract string, payload []byte) ([]byte, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.queryResp, nil
}

func (f *fakeTransport) AccountInfo(ctx context.Context, address string) (uint64, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seq := f.sequence
	f.sequence++
	return 1, seq, nil
}

func (f *fakeTransport) BroadcastTx(ctx context.Context, txBytes []byte) (string, uint32, string, error) {
	if f.broadcastErr != nil {
		return "", 0, "", f.broadcastErr
	}
	n := atomic.AddInt32(&f.inFlight, 1)
	for {
		cur := atomic.LoadInt32(&f.maxInFlight)
		if n <= cur || atomic.CompareAndSwapInt32(&f.maxInFlight, cur, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	atomic.AddInt32(&f.inFlight, -1)
	return "ABCDEF", f.broadcastCode, f.broadcastLog, nil
}

type fakeSigner struct {
	addr string
}

func (s *fakeSigner) Address() string { return s.addr }

func (s *fakeSigner) SignTx(accountNumber, sequence uint64, contract string, msg json.RawMessage, funds []Coin) ([]byte, error) {
	return json.Marshal(map[string]any{
		"account_number": accountNumber,
		"sequence":       sequence,
		"contract":       contract,
		"msg":            string(msg),
	})
}

func TestQueryDecodesResponse(t *testing.T) {
	transport := &fakeTransport{queryResp: []byte(`{"latest_round":42}`)}
	client := New(transport, &fakeSigner{addr: "inj1operator"})

	var out struct {
		LatestRound int `json:"latest_round"`
	}
	if err := client.Query(context.Background(), "inj1oracle", map[string]any{"latest_round": struct{}{}}, &out); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if out.LatestRound != 42 {
		t.Errorf("LatestRound = %d, want 42", out.LatestRound)
	}
}

func TestQueryWrapsTransportError(t *testing.T) {
	transport := &fakeTransport{queryErr: errors.New("boom")}
	client := New(transport, &fakeSigner{addr: "inj1operator"})

	err := client.Query(context.Background(), "inj1oracle", map[string]any{}, nil)
	if !errors.Is(err, errs.Transport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestExecuteRejectedTx(t *testing.T) {
	transport := &fakeTransport{broadcastCode: 5, broadcastLog: "insufficient funds"}
	client := New(transport, &fakeSigner{addr: "inj1operator"})

	_, err := client.Execute(context.Background(), "inj1hub", map[string]any{"advance_epoch": struct{}{}}, nil)
	if !errors.Is(err, errs.TxRejected) {
		t.Fatalf("expected tx rejected error, got %v", err)
	}
}

func TestExecuteSerializesWrites(t *testing.T) {
	transport := &fakeTransport{}
	client := New(transport, &fakeSigner{addr: "inj1operator"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Execute(context.Background(), "inj1hub", map[string]any{"advance_epoch": struct{}{}}, nil); err != nil {
				t.Errorf("Execute: %v", err)
			}
		}()
	}
	wg.Wait()

	if transport.maxInFlight > 1 {
		t.Fatalf("observed %d concurrent broadcasts, want at most 1 (write mutex not serializing)", transport.maxInFlight)
	}
	if transport.sequence != 8 {
		t.Fatalf("expected 8 sequential AccountInfo reads, got %d", transport.sequence)
	}
}

func TestExecuteRespectsContextCancellation(t *testing.T) {
	transport := &fakeTransport{}
	client := New(transport, &fakeSigner{addr: "inj1operator"})

	// Hold the write slot by draining it, simulating an in-flight write.
	<-client.writeSlot

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := client.Execute(ctx, "inj1hub", map[string]any{}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
	client.writeSlot <- struct{}{}
}
