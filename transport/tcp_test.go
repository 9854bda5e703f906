package transport_test

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/luma/respkv/protocol"
	"github.com/luma/respkv/storage"
	"github.com/luma/respkv/transport"
)

var _ = Describe("transport", func() {
	var (
		ctx context.Context
		tcp *transport.TCP
	)

	BeforeEach(func() {
		ctx = context.Background()
	})

	AfterEach(func() {
		if tcp != nil {
			Expect(tcp.Close()).To(Succeed())
			tcp = nil
		}
	})

	Describe("TCP", func() {
		It("listens on the bound address", func() {
			tcp = makeTCPServer(transport.Options{})
			Expect(tcp.Addr()).NotTo(BeNil())

			conn, err := net.Dial("tcp", tcp.Addr().String())
			Expect(err).To(Succeed())
			conn.Close()
		})

		It("fails to start when the address is taken", func() {
			tcp = makeTCPServer(transport.Options{})

			_, port, err := net.SplitHostPort(tcp.Addr().String())
			Expect(err).To(Succeed())

			portNum, err := strconv.Atoi(port)
			Expect(err).To(Succeed())

			other := transport.NewTCP(transport.Options{
				Host:  "127.0.0.1",
				Port:  portNum,
				Store: storage.NewInmemoryStore(),
			})
			Expect(other.Start(ctx)).NotTo(Succeed())
		})

		It("shares one port across listeners with reuseport", func() {
			tcp = makeTCPServer(transport.Options{Reuseport: true, NumListeners: 2})

			for i := 0; i < 4; i++ {
				client := dial(tcp)
				client.send("*1\r\n$4\r\nPING\r\n")
				client.expect("+PONG\r\n")
				client.conn.Close()
			}
		})

		It("closes client connections on Close", func() {
			tcp = makeTCPServer(transport.Options{})
			client := dial(tcp)

			client.send("*1\r\n$4\r\nPING\r\n")
			client.expect("+PONG\r\n")
			Eventually(tcp.ActiveConns).Should(Equal(1))

			Expect(tcp.Close()).To(Succeed())
			tcp = nil

			client.waitForClose()
		})

		It("forgets connections once clients disconnect", func() {
			tcp = makeTCPServer(transport.Options{})

			client := dial(tcp)
			client.send("*1\r\n$4\r\nPING\r\n")
			client.expect("+PONG\r\n")
			Eventually(tcp.ActiveConns).Should(Equal(1))

			client.conn.Close()
			Eventually(tcp.ActiveConns).Should(Equal(0))
		})

		It("closes cleanly while clients keep connecting", func() {
			tcp = makeTCPServer(transport.Options{Reuseport: true, NumListeners: 2})
			addr := tcp.Addr().String()

			stop := make(chan struct{})
			dialed := make(chan struct{})

			go func() {
				defer GinkgoRecover()
				defer close(dialed)

				var conns []net.Conn
				defer func() {
					for _, conn := range conns {
						conn.Close()
					}
				}()

				for {
					select {
					case <-stop:
						return
					default:
					}

					conn, err := net.DialTimeout("tcp", addr, time.Second)
					if err == nil {
						conns = append(conns, conn)
					}
				}
			}()

			Eventually(tcp.ActiveConns).Should(BeNumerically(">", 0))

			Expect(tcp.Close()).To(Succeed())
			Expect(tcp.ActiveConns()).To(Equal(0))
			tcp = nil

			close(stop)
			Eventually(dialed).Should(BeClosed())
		})
	})

	Describe("requests", func() {
		var client *testClient

		BeforeEach(func() {
			tcp = makeTCPServer(transport.Options{MaxBufferSize: 64})
			client = dial(tcp)
		})

		AfterEach(func() {
			client.conn.Close()
		})

		It("replies null for a missing key", func() {
			client.send("*2\r\n$3\r\nGET\r\n$3\r\nkey\r\n")
			client.expect("$-1\r\n")
		})

		It("stores values with SET", func() {
			client.send("*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n")
			client.expect("+OK\r\n")

			client.send("*2\r\n$3\r\nGET\r\n$3\r\nkey\r\n")
			client.expect("$5\r\nvalue\r\n")

			value, ok, err := tcp.Store().Get(ctx, "key")
			Expect(err).To(Succeed())
			Expect(ok).To(BeTrue())
			Expect(value).To(Equal(protocol.BulkString("value")))
		})

		It("waits for frames split across reads", func() {
			request := "*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n"

			for _, part := range []string{request[:6], request[6:17], request[17:]} {
				client.send(part)
				time.Sleep(10 * time.Millisecond)
			}

			client.expect("+OK\r\n")
		})

		It("replies to pipelined requests in order", func() {
			client.send("*1\r\n$4\r\nPING\r\n" +
				"*3\r\n$3\r\nSET\r\n$1\r\na\r\n$1\r\n1\r\n" +
				"*2\r\n$6\r\nEXISTS\r\n$1\r\na\r\n" +
				"*2\r\n$4\r\nECHO\r\n$2\r\nhi\r\n")

			client.expect("+PONG\r\n+OK\r\n:1\r\n$2\r\nhi\r\n")
		})

		It("reports invalid commands and keeps the connection open", func() {
			client.send("+PING\r\n")
			Expect(client.readLine()).To(HavePrefix("-ERR invalid command"))

			client.send("*1\r\n$3\r\nFLY\r\n")
			Expect(client.readLine()).To(Equal("-ERR invalid command: unknown command 'FLY'\r\n"))

			client.send("*1\r\n$4\r\nPING\r\n")
			client.expect("+PONG\r\n")
		})

		It("closes the connection on malformed frames", func() {
			client.send("?what\r\n")
			Expect(client.readLine()).To(HavePrefix("-ERR Protocol error:"))
			client.waitForClose()
		})

		It("closes the connection when a frame outgrows the buffer", func() {
			client.send("$1000\r\n" + strings.Repeat("x", 100))
			Expect(client.readLine()).To(Equal("-ERR Protocol error: request exceeds 64 bytes\r\n"))
			client.waitForClose()
		})

		It("closes the connection after QUIT", func() {
			client.send("*1\r\n$4\r\nQUIT\r\n")
			client.expect("+OK\r\n")
			client.waitForClose()
		})
	})

	Describe("nesting limits", func() {
		var client *testClient

		BeforeEach(func() {
			tcp = makeTCPServer(transport.Options{MaxDepth: 4})
			client = dial(tcp)
		})

		AfterEach(func() {
			client.conn.Close()
		})

		It("handles requests nested up to the limit", func() {
			client.send(strings.Repeat("*1\r\n", 4) + ":1\r\n")
			Expect(client.readLine()).To(HavePrefix("-ERR invalid command"))

			client.send("*1\r\n$4\r\nPING\r\n")
			client.expect("+PONG\r\n")
		})

		It("closes the connection on requests nested beyond the limit", func() {
			client.send(strings.Repeat("*1\r\n", 5) + ":1\r\n")
			Expect(client.readLine()).To(Equal(
				"-ERR Protocol error: frame is nested too deeply: more than 4 levels\r\n"))
			client.waitForClose()
		})

		It("rejects deep nesting before the request is complete", func() {
			client.send(strings.Repeat("*1\r\n", 1000))
			Expect(client.readLine()).To(HavePrefix("-ERR Protocol error: frame is nested too deeply"))
			client.waitForClose()
		})

		It("applies the default limit", func() {
			client.conn.Close()
			Expect(tcp.Close()).To(Succeed())
			tcp = makeTCPServer(transport.Options{})
			client = dial(tcp)

			client.send(strings.Repeat("*1\r\n", transport.DefaultMaxDepth) + ":1\r\n")
			Expect(client.readLine()).To(HavePrefix("-ERR invalid command"))

			client.send(strings.Repeat("*1\r\n", transport.DefaultMaxDepth+1) + ":1\r\n")
			Expect(client.readLine()).To(HavePrefix("-ERR Protocol error: frame is nested too deeply"))
			client.waitForClose()
		})
	})

	Describe("with a redis client", func() {
		var rdb *redis.Client

		BeforeEach(func() {
			tcp = makeTCPServer(transport.Options{})
			rdb = redis.NewClient(&redis.Options{
				Addr:            tcp.Addr().String(),
				Protocol:        2,
				DisableIdentity: true,
			})
		})

		AfterEach(func() {
			Expect(rdb.Close()).To(Succeed())
		})

		It("serves GET and SET", func() {
			_, err := rdb.Get(ctx, "key").Result()
			Expect(err).To(MatchError(redis.Nil))

			Expect(rdb.Set(ctx, "key", "value", 0).Err()).To(Succeed())
			Expect(rdb.Get(ctx, "key").Result()).To(Equal("value"))
		})

		It("serves DEL, EXISTS, PING and ECHO", func() {
			Expect(rdb.Set(ctx, "a", "1", 0).Err()).To(Succeed())
			Expect(rdb.Set(ctx, "b", "2", 0).Err()).To(Succeed())

			Expect(rdb.Exists(ctx, "a", "b", "c").Result()).To(Equal(int64(2)))
			Expect(rdb.Del(ctx, "a", "c").Result()).To(Equal(int64(1)))
			Expect(rdb.Ping(ctx).Result()).To(Equal("PONG"))
			Expect(rdb.Echo(ctx, "hello").Result()).To(Equal("hello"))
		})

		It("serves pipelines", func() {
			cmds, err := rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, "x", "1", 0)
				p.Get(ctx, "x")
				p.Exists(ctx, "x", "y")
				return nil
			})
			Expect(err).To(Succeed())
			Expect(cmds).To(HaveLen(3))
			Expect(cmds[1].(*redis.StringCmd).Val()).To(Equal("1"))
			Expect(cmds[2].(*redis.IntCmd).Val()).To(Equal(int64(1)))
		})

		It("returns errors for unknown commands", func() {
			err := rdb.Do(ctx, "FLY", "away").Err()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(Equal("ERR invalid command: unknown command 'FLY'"))
		})
	})
})

type testClient struct {
	conn net.Conn
	r    *bufio.Reader
}

func dial(tcp *transport.TCP) *testClient {
	conn, err := net.Dial("tcp", tcp.Addr().String())
	Expect(err).To(Succeed())

	return &testClient{conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) send(data string) {
	_, err := c.conn.Write([]byte(data))
	Expect(err).To(Succeed())
}

func (c *testClient) expect(reply string) {
	Expect(c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())

	got := make([]byte, len(reply))
	_, err := io.ReadFull(c.r, got)
	Expect(err).To(Succeed())
	Expect(string(got)).To(Equal(reply))
}

func (c *testClient) readLine() string {
	Expect(c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())

	line, err := c.r.ReadString('\n')
	Expect(err).To(Succeed())
	return line
}

// waitForClose waits for the server to close the connection.
func (c *testClient) waitForClose() {
	Expect(c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())

	one := make([]byte, 1)
	_, err := c.r.Read(one)

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		Fail("The client was never closed by the server")
	}

	Expect(err).To(HaveOccurred())
}

func makeTCPServer(options transport.Options) *transport.TCP {
	log, err := zap.NewDevelopment()
	Expect(err).To(Succeed())

	options.Host = "127.0.0.1"
	options.Store = storage.NewInmemoryStore()
	options.Log = log
	options.Trace = true

	tcp := transport.NewTCP(options)
	Expect(tcp.Start(context.Background())).To(Succeed())

	return tcp
}
