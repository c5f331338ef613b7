// Tool to probe a running widget host end to end: connect like a page shim,
// walk the iframe handshake, expand the widget, then confirm the session
// reports healthy.
// Usage: go run main.go -url http://localhost:10010 -tenant abc123
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/coder/websocket"

	"github.com/picassohq/widget-embed/server/lib/protocol"
)

func main() {
	baseURL := flag.String("url", "http://localhost:10010", "Base URL of the widget host")
	tenant := flag.String("tenant", "abc123", "Tenant hash to boot with")
	pageURL := flag.String("page", "https://example.com/pricing", "Simulated hosting page URL")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall probe timeout")
	flag.Parse()

	fmt.Printf("Probing widget host\n")
	fmt.Printf("  URL: %s\n", *baseURL)
	fmt.Printf("  Tenant: %s\n", *tenant)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := runProbe(ctx, *baseURL, *tenant, *pageURL); err != nil {
		fmt.Printf("❌ FAILED: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ PASSED\n")
}

func runProbe(ctx context.Context, baseURL, tenant, pageURL string) error {
	conn, err := dialSession(ctx, baseURL)
	if err != nil {
		return fmt.Errorf("failed to dial session: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	fmt.Printf("  Booting session...\n")
	trusted, err := boot(ctx, conn, baseURL, tenant, pageURL)
	if err != nil {
		return err
	}

	fmt.Printf("  Walking iframe handshake (trusted origin %s)...\n", trusted)
	if err := handshake(ctx, conn, trusted); err != nil {
		return err
	}

	fmt.Printf("  Expanding via container click...\n")
	if err := expand(ctx, conn); err != nil {
		return err
	}

	fmt.Printf("  Checking session health...\n")
	return checkHealth(ctx, baseURL)
}

func dialSession(ctx context.Context, baseURL string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/session"
	var conn *websocket.Conn
	err := retry.New(
		retry.Attempts(10),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	).Do(func() error {
		c, _, err := websocket.Dial(ctx, wsURL, nil)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed after retries: %w", err)
	}
	return conn, nil
}

// boot sends BOOT and waits for the mount instruction. It returns the
// trusted frame origin derived from the mount src.
func boot(ctx context.Context, conn *websocket.Conn, baseURL, tenant, pageURL string) (string, error) {
	err := send(ctx, conn, protocol.ShimMessage{
		Type:      protocol.ShimBoot,
		ScriptURL: baseURL + "/widget.js",
		PageURL:   pageURL,
		Tenant:    tenant,
		Width:     1440,
		Height:    900,
	})
	if err != nil {
		return "", err
	}

	mount, err := recv(ctx, conn)
	if err != nil {
		return "", fmt.Errorf("waiting for mount: %w", err)
	}
	if mount.Type != protocol.HostDomMount {
		return "", fmt.Errorf("expected %s, got %s", protocol.HostDomMount, mount.Type)
	}
	if !strings.Contains(mount.Src, "t="+tenant) {
		return "", fmt.Errorf("mount src %q does not carry the tenant", mount.Src)
	}

	// The trusted origin is the mount src's origin.
	idx := strings.Index(mount.Src[len("https://"):], "/")
	if idx < 0 {
		return "", fmt.Errorf("cannot derive origin from src %q", mount.Src)
	}
	return mount.Src[:len("https://")+idx], nil
}

func handshake(ctx context.Context, conn *websocket.Conn, trusted string) error {
	ready := protocol.Envelope{Type: protocol.TypeFrameReady, Timestamp: time.Now().UnixMilli()}
	if err := sendFrameMessage(ctx, conn, trusted, ready); err != nil {
		return err
	}

	init, err := recv(ctx, conn)
	if err != nil {
		return fmt.Errorf("waiting for init relay: %w", err)
	}
	if init.Type != protocol.HostRelay || init.Envelope == nil || init.Envelope.Type != protocol.TypeInit {
		return fmt.Errorf("expected %s relay, got %+v", protocol.TypeInit, init)
	}

	loaded := protocol.Envelope{Type: protocol.TypeLoaded, Timestamp: time.Now().UnixMilli()}
	return sendFrameMessage(ctx, conn, trusted, loaded)
}

func expand(ctx context.Context, conn *websocket.Conn) error {
	if err := send(ctx, conn, protocol.ShimMessage{Type: protocol.ShimClick}); err != nil {
		return err
	}
	apply, err := recv(ctx, conn)
	if err != nil {
		return fmt.Errorf("waiting for geometry: %w", err)
	}
	if apply.Type != protocol.HostDomApply {
		return fmt.Errorf("expected %s, got %s", protocol.HostDomApply, apply.Type)
	}
	return nil
}

func checkHealth(ctx context.Context, baseURL string) error {
	return retry.New(
		retry.Attempts(10),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	).Do(func() error {
		var health struct {
			SessionIDs []string `json:"sessionIds"`
		}
		if err := getJSON(ctx, baseURL+"/health", &health); err != nil {
			return err
		}
		if len(health.SessionIDs) == 0 {
			return fmt.Errorf("no live sessions")
		}

		var snap struct {
			Healthy bool `json:"healthy"`
		}
		if err := getJSON(ctx, baseURL+"/sessions/"+health.SessionIDs[0]+"/health", &snap); err != nil {
			return err
		}
		if !snap.Healthy {
			return fmt.Errorf("session not healthy yet")
		}
		return nil
	})
}

func send(ctx context.Context, conn *websocket.Conn, msg protocol.ShimMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func sendFrameMessage(ctx context.Context, conn *websocket.Conn, origin string, env protocol.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return send(ctx, conn, protocol.ShimMessage{
		Type:     protocol.ShimPageMessage,
		Origin:   origin,
		Source:   "iframe",
		Envelope: raw,
	})
}

func recv(ctx context.Context, conn *websocket.Conn) (protocol.HostMessage, error) {
	var msg protocol.HostMessage
	_, data, err := conn.Read(ctx)
	if err != nil {
		return msg, err
	}
	return msg, json.Unmarshal(data, &msg)
}

func getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, v)
}
