// tlsxdemo runs a client/server session over a TCP loopback: handshake,
// one echo exchange, then a clean shutdown from both sides.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/m-lab/go/rtx"

	"code.hybscloud.com/tlsx"
	"code.hybscloud.com/tlsx/tlsxtest"
)

func main() {
	var (
		flagMessage = flag.String("tlsxdemo-message", "hello, tlsx", "Message to echo through the session")
		flagEarly   = flag.String("tlsxdemo-early", "", "Optional early data to send ahead of the handshake")
		flagTimeout = flag.Duration("tlsxdemo-timeout", 10*time.Second, "Session deadline")
		flagVerbose = flag.Bool("tlsxdemo-verbose", false, "Enable debug logging")
	)
	flag.Parse()
	log.SetHandler(cli.Default)
	if *flagVerbose {
		log.SetLevel(log.DebugLevel)
	}
	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout)
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	rtx.Must(err, "net.Listen failed")
	defer ln.Close()
	log.Infof("listening at %s", ln.Addr())

	serverDone := make(chan error, 1)
	go func() { serverDone <- serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	rtx.Must(err, "net.Dial failed")
	defer conn.Close()

	client, err := tlsx.New(tlsxtest.Client(tlsxtest.Identity{Name: "tlsxdemo-client"}), tlsx.NetConn(conn))
	rtx.Must(err, "tlsx.New failed")

	if *flagEarly != "" {
		_, err := client.WriteEarlyData(ctx, []byte(*flagEarly))
		rtx.Must(err, "early data failed")
		log.Debugf("sent early data %q", *flagEarly)
	}
	rtx.Must(client.Connect(ctx), "handshake failed")
	peer := client.Engine().(*tlsxtest.LoopbackEngine).PeerName()
	log.Infof("connected, peer identity %q", peer)

	_, err = client.Write(ctx, []byte(*flagMessage))
	rtx.Must(err, "write failed")
	rtx.Must(client.Flush(ctx), "flush failed")
	log.Debugf("sent %q", *flagMessage)

	buf := make([]byte, len(*flagMessage))
	for off := 0; off < len(buf); {
		n, err := client.Read(ctx, buf[off:])
		off += n
		rtx.Must(err, "read failed")
	}
	fmt.Printf("%s\n", buf)

	rtx.Must(client.Shutdown(ctx), "client shutdown failed")
	rtx.Must(<-serverDone, "server failed")
	log.Info("session closed cleanly")
}

// serve accepts one connection and echoes a single message back.
func serve(ctx context.Context, ln net.Listener) error {
	conn, err := ln.Accept()
	if err != nil {
		return err
	}
	defer conn.Close()

	server, err := tlsx.New(tlsxtest.Server(tlsxtest.Identity{Name: "tlsxdemo-server"}), tlsx.NetConn(conn))
	if err != nil {
		return err
	}
	// drain any early data before the regular exchange; (0, nil) ends
	// the phase immediately when none was sent
	buf0 := make([]byte, 1500)
	for {
		n, err := server.ReadEarlyData(ctx, buf0)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		log.Infof("early data: %q", buf0[:n])
	}
	if err := server.Accept(ctx); err != nil {
		return err
	}
	log.Debugf("server saw peer %q", server.Engine().(*tlsxtest.LoopbackEngine).PeerName())

	buf := make([]byte, 1500)
	n, err := server.Read(ctx, buf)
	if err != nil {
		return err
	}
	if _, err := server.Write(ctx, buf[:n]); err != nil {
		return err
	}
	if err := server.Flush(ctx); err != nil {
		return err
	}
	return server.Shutdown(ctx)
}
