// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlsx_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/tlsx"
	"code.hybscloud.com/tlsx/tlsxtest"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newPair(t *testing.T, capacity int) (client, server *tlsx.Stream, clientTr, serverTr *tlsxtest.PipeTransport) {
	t.Helper()
	clientTr, serverTr = tlsxtest.Pipe(capacity)
	client, err := tlsx.New(tlsxtest.Client(tlsxtest.Identity{Name: "client"}), clientTr)
	if err != nil {
		t.Fatal(err)
	}
	server, err = tlsx.New(tlsxtest.Server(tlsxtest.Identity{Name: "server"}), serverTr)
	if err != nil {
		t.Fatal(err)
	}
	return client, server, clientTr, serverTr
}

func writeFull(ctx context.Context, s *tlsx.Stream, p []byte) error {
	for {
		n, err := s.Write(ctx, p)
		if err != nil {
			return err
		}
		p = p[n:]
		if len(p) == 0 {
			break
		}
	}
	return s.Flush(ctx)
}

func readFull(ctx context.Context, s *tlsx.Stream, p []byte) error {
	for off := 0; off < len(p); {
		n, err := s.Read(ctx, p[off:])
		off += n
		if err != nil {
			return err
		}
	}
	return nil
}

func readToEnd(ctx context.Context, s *tlsx.Stream) ([]byte, error) {
	var out bytes.Buffer
	buf := make([]byte, 1500)
	for {
		n, err := s.Read(ctx, buf)
		out.Write(buf[:n])
		if errors.Is(err, io.EOF) {
			return out.Bytes(), nil
		}
		if err != nil {
			return out.Bytes(), err
		}
	}
}

// run drives client and server concurrently and fails the test on the
// first error either side reports.
func run(t *testing.T, client, server func() error) {
	t.Helper()
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for name, fn := range map[string]func() error{"client": client, "server": server} {
		wg.Add(1)
		go func(name string, fn func() error) {
			defer wg.Done()
			if err := fn(); err != nil {
				errs <- fmt.Errorf("%s: %w", name, err)
			}
		}(name, fn)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestRoundTrip_HandshakeEchoAndBothShutdown(t *testing.T) {
	ctx := testContext(t)
	client, server, _, _ := newPair(t, 0)

	run(t, func() error {
		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		if err := writeFull(ctx, client, []byte("asdf")); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		got, err := readToEnd(ctx, client)
		if err != nil {
			return fmt.Errorf("read to end: %w", err)
		}
		if string(got) != "jkl;" {
			return fmt.Errorf("read %q, want %q", got, "jkl;")
		}
		return client.Shutdown(ctx)
	}, func() error {
		if err := server.Accept(ctx); err != nil {
			return fmt.Errorf("accept: %w", err)
		}
		buf := make([]byte, 4)
		if err := readFull(ctx, server, buf); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if string(buf) != "asdf" {
			return fmt.Errorf("read %q, want %q", buf, "asdf")
		}
		if err := writeFull(ctx, server, []byte("jkl;")); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		return server.Shutdown(ctx)
	})

	ceng := client.Engine().(*tlsxtest.LoopbackEngine)
	seng := server.Engine().(*tlsxtest.LoopbackEngine)
	if ceng.PeerName() != "server" || seng.PeerName() != "client" {
		t.Fatalf("peer names %q/%q", ceng.PeerName(), seng.PeerName())
	}
}

func TestRoundTrip_PayloadSizes(t *testing.T) {
	sizes := []int{0, 1, 40000} // 40000 spans multiple records
	for _, size := range sizes {
		t.Run(fmt.Sprintf("size_%d", size), func(t *testing.T) {
			ctx := testContext(t)
			client, server, _, _ := newPair(t, 0)

			payload := make([]byte, size)
			for i := range payload {
				payload[i] = byte(i % 251)
			}

			run(t, func() error {
				if err := client.Connect(ctx); err != nil {
					return err
				}
				if err := writeFull(ctx, client, payload); err != nil {
					return err
				}
				return client.Shutdown(ctx)
			}, func() error {
				if err := server.Accept(ctx); err != nil {
					return err
				}
				got, err := readToEnd(ctx, server)
				if err != nil {
					return err
				}
				if !bytes.Equal(got, payload) {
					return fmt.Errorf("payload mismatch: got %d bytes, want %d", len(got), len(payload))
				}
				return server.Shutdown(ctx)
			})
		})
	}
}

func TestRoundTrip_SmallPipeBackpressure(t *testing.T) {
	// a pipe far smaller than one record forces pending on both sides of
	// every exchange
	ctx := testContext(t)
	client, server, _, _ := newPair(t, 512)

	payload := bytes.Repeat([]byte("backpressure"), 4096)

	run(t, func() error {
		if err := client.Connect(ctx); err != nil {
			return err
		}
		if err := writeFull(ctx, client, payload); err != nil {
			return err
		}
		return client.Shutdown(ctx)
	}, func() error {
		if err := server.Accept(ctx); err != nil {
			return err
		}
		got, err := readToEnd(ctx, server)
		if err != nil {
			return err
		}
		if !bytes.Equal(got, payload) {
			return fmt.Errorf("payload mismatch after backpressure")
		}
		return server.Shutdown(ctx)
	})
}

func TestRoundTrip_ServerShutdownClientNever(t *testing.T) {
	ctx := testContext(t)
	client, server, clientTr, _ := newPair(t, 0)

	run(t, func() error {
		if err := client.Connect(ctx); err != nil {
			return err
		}
		if err := writeFull(ctx, client, []byte("asdf")); err != nil {
			return err
		}
		got, err := readToEnd(ctx, client)
		if err != nil {
			return err
		}
		if string(got) != "jkl;" {
			return fmt.Errorf("read %q", got)
		}
		// drop the connection without ever shutting down
		return clientTr.Close()
	}, func() error {
		if err := server.Accept(ctx); err != nil {
			return err
		}
		buf := make([]byte, 4)
		if err := readFull(ctx, server, buf); err != nil {
			return err
		}
		if err := writeFull(ctx, server, []byte("jkl;")); err != nil {
			return err
		}
		// must converge once the client's side goes away, despite the
		// missing close notification
		return server.Shutdown(ctx)
	})
}

func TestRoundTrip_AbruptCloseMidDrain(t *testing.T) {
	ctx := testContext(t)
	client, server, clientTr, _ := newPair(t, 0)

	run(t, func() error {
		if err := client.Connect(ctx); err != nil {
			return err
		}
		// leave unread data in flight, then vanish without a close
		// notification
		if err := writeFull(ctx, client, bytes.Repeat([]byte("x"), 4000)); err != nil {
			return err
		}
		return clientTr.Close()
	}, func() error {
		if err := server.Accept(ctx); err != nil {
			return err
		}
		// shutdown drains the leftover records, then hits the bare
		// transport end; both are benign
		return server.Shutdown(ctx)
	})
}

func TestRoundTrip_EarlyData(t *testing.T) {
	ctx := testContext(t)
	client, server, _, _ := newPair(t, 0)

	run(t, func() error {
		if n, err := client.WriteEarlyData(ctx, []byte("early!")); err != nil || n != 6 {
			return fmt.Errorf("write early data: %d, %w", n, err)
		}
		if err := client.Connect(ctx); err != nil {
			return err
		}
		if err := writeFull(ctx, client, []byte("regular")); err != nil {
			return err
		}
		return client.Shutdown(ctx)
	}, func() error {
		var early bytes.Buffer
		buf := make([]byte, 256)
		for {
			n, err := server.ReadEarlyData(ctx, buf)
			if err != nil {
				return fmt.Errorf("read early data: %w", err)
			}
			if n == 0 {
				break
			}
			early.Write(buf[:n])
		}
		if early.String() != "early!" {
			return fmt.Errorf("early data %q", early.String())
		}
		got, err := readToEnd(ctx, server)
		if err != nil {
			return err
		}
		if string(got) != "regular" {
			return fmt.Errorf("regular data %q", got)
		}
		return server.Shutdown(ctx)
	})
}

func TestRoundTrip_WritevSpansBuffers(t *testing.T) {
	ctx := testContext(t)
	client, server, _, _ := newPair(t, 0)

	run(t, func() error {
		if err := client.Connect(ctx); err != nil {
			return err
		}
		bufs := [][]byte{[]byte("vectored "), []byte("write "), []byte("path")}
		total := 0
		for _, b := range bufs {
			total += len(b)
		}
		n, err := client.Writev(ctx, bufs)
		if err != nil {
			return err
		}
		if n != total {
			return fmt.Errorf("writev consumed %d of %d", n, total)
		}
		if err := client.Flush(ctx); err != nil {
			return err
		}
		return client.Shutdown(ctx)
	}, func() error {
		if err := server.Accept(ctx); err != nil {
			return err
		}
		got, err := readToEnd(ctx, server)
		if err != nil {
			return err
		}
		if string(got) != "vectored write path" {
			return fmt.Errorf("read %q", got)
		}
		return server.Shutdown(ctx)
	})
}
