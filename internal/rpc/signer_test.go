package rpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prophet-exchange/prophet-chat/pkg/logging"
)

func newTestSigner() (*remoteSigner, *Client) {
	client := &Client{
		id:   "test",
		send: make(chan []byte, 16),
		log:  logging.GetDefault().Component("rpc"),
	}
	signer := newRemoteSigner(client)
	client.signer = signer
	return signer, client
}

// respond reads the next wallet_request frame and answers it.
func respond(t *testing.T, client *Client, result interface{}, errText string) {
	t.Helper()

	select {
	case data := <-client.send:
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Errorf("malformed wallet_request frame: %v", err)
			return
		}
		if frame.Type != "wallet_request" {
			t.Errorf("frame type = %s, want wallet_request", frame.Type)
		}
		raw, _ := json.Marshal(result)
		client.signer.resolve(frame.ID, raw, errText)
	case <-time.After(time.Second):
		t.Error("no wallet_request frame was sent")
	}
}

func TestSignerRoundTrip(t *testing.T) {
	signer, client := newTestSigner()

	go respond(t, client, "txid123", "")

	txid, err := signer.SendKaspa(context.Background(), "kaspa:qq0dest", 2500000000)
	if err != nil {
		t.Fatalf("SendKaspa() error = %v", err)
	}
	if txid != "txid123" {
		t.Errorf("txid = %s, want txid123", txid)
	}
}

func TestSignerWalletError(t *testing.T) {
	signer, client := newTestSigner()

	go respond(t, client, nil, "user rejected")

	_, err := signer.SignMessage(context.Background(), "mh1")
	if err == nil || err.Error() != "user rejected" {
		t.Errorf("SignMessage() error = %v, want user rejected", err)
	}
}

func TestSignerContextCancel(t *testing.T) {
	signer, _ := newTestSigner()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := signer.PublicKey(ctx)
	if err != context.Canceled {
		t.Errorf("PublicKey() error = %v, want context.Canceled", err)
	}
}

func TestSignerCloseFailsPending(t *testing.T) {
	signer, _ := newTestSigner()

	done := make(chan error, 1)
	go func() {
		_, err := signer.SignMessage(context.Background(), "mh1")
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	signer.close()

	select {
	case err := <-done:
		if err != errSignerClosed {
			t.Errorf("SignMessage() error = %v, want errSignerClosed", err)
		}
	case <-time.After(time.Second):
		t.Error("pending call was not failed by close")
	}
}

func TestSignerResolveUnknownID(t *testing.T) {
	signer, _ := newTestSigner()
	// Must not panic or block.
	signer.resolve("nonexistent", nil, "")
}
