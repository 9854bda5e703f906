package command_test

import (
	"bytes"
	"context"
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/luma/respkv/command"
	"github.com/luma/respkv/protocol"
	"github.com/luma/respkv/storage"
)

func decode(input string) protocol.Frame {
	frame, err := protocol.Decode(bytes.NewBufferString(input))
	Expect(err).To(Succeed())
	return frame
}

var _ = Describe("command", func() {
	var (
		ctx   context.Context
		store *storage.InmemoryStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = storage.NewInmemoryStore()
	})

	AfterEach(func() {
		store.Close()
	})

	Describe("FromFrame()", func() {
		It("parses GET from a decoded array", func() {
			cmd, err := command.FromFrame(decode("*2\r\n$3\r\nGET\r\n$3\r\nkey\r\n"))
			Expect(err).To(Succeed())
			Expect(cmd).To(Equal(command.Get{Key: "key"}))
		})

		It("parses SET from a decoded array", func() {
			cmd, err := command.FromFrame(decode("*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n"))
			Expect(err).To(Succeed())
			Expect(cmd).To(Equal(command.Set{Key: "key", Value: protocol.BulkString("value")}))
		})

		It("matches command names case-insensitively", func() {
			cmd, err := command.FromFrame(protocol.NewCommand("gEt", "key"))
			Expect(err).To(Succeed())
			Expect(cmd.Name()).To(Equal(command.GET))
		})

		It("stores any frame as a SET value", func() {
			value := protocol.Array{protocol.Integer(1), protocol.NullBulkString{}}

			cmd, err := command.FromFrame(protocol.Array{
				protocol.BulkString("SET"), protocol.BulkString("key"), value,
			})
			Expect(err).To(Succeed())
			Expect(cmd).To(Equal(command.Set{Key: "key", Value: value}))
		})

		It("parses the variadic commands", func() {
			cmd, err := command.FromFrame(protocol.NewCommand("DEL", "a", "b"))
			Expect(err).To(Succeed())
			Expect(cmd).To(Equal(command.Del{Keys: []string{"a", "b"}}))

			cmd, err = command.FromFrame(protocol.NewCommand("exists", "a"))
			Expect(err).To(Succeed())
			Expect(cmd).To(Equal(command.Exists{Keys: []string{"a"}}))
		})

		DescribeTable("rejects invalid requests",
			func(frame protocol.Frame, expected error) {
				cmd, err := command.FromFrame(frame)
				Expect(cmd).To(BeNil())
				Expect(err).To(MatchError(expected))
				Expect(errors.Is(err, command.ErrInvalidCommand)).To(BeTrue())
			},
			Entry("non array", protocol.SimpleString("GET"), command.ErrNotAnArray),
			Entry("empty array", protocol.Array{}, command.ErrEmptyCommand),
			Entry("name is not a bulk string", protocol.Array{protocol.SimpleString("GET")}, command.ErrInvalidArgument),
			Entry("unknown name", protocol.NewCommand("FLY", "away"), command.ErrUnknownCommand),
			Entry("GET without a key", protocol.NewCommand("GET"), command.ErrWrongArity),
			Entry("GET with two keys", protocol.NewCommand("GET", "a", "b"), command.ErrWrongArity),
			Entry("SET without a value", protocol.NewCommand("SET", "key"), command.ErrWrongArity),
			Entry("SET without arguments", protocol.NewCommand("SET"), command.ErrWrongArity),
			Entry("SET with too many arguments", protocol.NewCommand("SET", "k", "v", "NX"), command.ErrWrongArity),
			Entry("DEL without keys", protocol.NewCommand("DEL"), command.ErrWrongArity),
			Entry("PING with two messages", protocol.NewCommand("PING", "a", "b"), command.ErrWrongArity),
			Entry("QUIT with an argument", protocol.NewCommand("QUIT", "now"), command.ErrWrongArity),
			Entry("GET with an integer key", protocol.Array{protocol.BulkString("GET"), protocol.Integer(1)}, command.ErrInvalidArgument),
			Entry("SET with a null key", protocol.Array{protocol.BulkString("SET"), protocol.NullBulkString{}, protocol.BulkString("v")}, command.ErrInvalidArgument),
			Entry("DEL with an array key", protocol.Array{protocol.BulkString("DEL"), protocol.BulkString("a"), protocol.Array{}}, command.ErrInvalidArgument),
		)
	})

	Describe("NewGet() / NewSet()", func() {
		It("reject an array naming another command", func() {
			_, err := command.NewGet(protocol.NewCommand("SET", "key"))
			Expect(err).To(MatchError(command.ErrInvalidArgument))

			_, err = command.NewSet(protocol.NewCommand("GET", "key", "value"))
			Expect(err).To(MatchError(command.ErrInvalidArgument))
		})
	})

	Describe("Execute()", func() {
		It("replies null for a missing key", func() {
			cmd, err := command.FromFrame(decode("*2\r\n$3\r\nGET\r\n$3\r\nkey\r\n"))
			Expect(err).To(Succeed())
			Expect(cmd.Execute(ctx, store)).To(Equal(protocol.NullBulkString{}))
		})

		It("stores with SET and reads back with GET", func() {
			set := command.Set{Key: "key", Value: protocol.BulkString("value")}
			reply := set.Execute(ctx, store)
			Expect(reply).To(Equal(protocol.OK))
			Expect(string(protocol.Encode(reply))).To(Equal("+OK\r\n"))

			get := command.Get{Key: "key"}
			Expect(get.Execute(ctx, store)).To(Equal(protocol.BulkString("value")))
		})

		It("overwrites on SET", func() {
			Expect(command.Set{Key: "k", Value: protocol.BulkString("1")}.Execute(ctx, store)).To(Equal(protocol.OK))
			Expect(command.Set{Key: "k", Value: protocol.BulkString("2")}.Execute(ctx, store)).To(Equal(protocol.OK))
			Expect(command.Get{Key: "k"}.Execute(ctx, store)).To(Equal(protocol.BulkString("2")))
		})

		It("counts with DEL and EXISTS", func() {
			command.Set{Key: "a", Value: protocol.OK}.Execute(ctx, store)
			command.Set{Key: "b", Value: protocol.OK}.Execute(ctx, store)

			Expect(command.Exists{Keys: []string{"a", "b", "c"}}.Execute(ctx, store)).To(Equal(protocol.Integer(2)))
			Expect(command.Del{Keys: []string{"a", "c"}}.Execute(ctx, store)).To(Equal(protocol.Integer(1)))
			Expect(command.Exists{Keys: []string{"a"}}.Execute(ctx, store)).To(Equal(protocol.Integer(0)))
		})

		It("answers PING and ECHO", func() {
			Expect(command.Ping{}.Execute(ctx, store)).To(Equal(protocol.SimpleString("PONG")))
			Expect(command.Ping{Message: protocol.BulkString("hi")}.Execute(ctx, store)).To(Equal(protocol.BulkString("hi")))
			Expect(command.Echo{Message: protocol.BulkString("hey")}.Execute(ctx, store)).To(Equal(protocol.BulkString("hey")))
		})

		It("replies with an error when the store fails", func() {
			store.Close()

			reply := command.Get{Key: "key"}.Execute(ctx, store)
			Expect(reply).To(Equal(protocol.SimpleError("ERR store is closed")))
		})
	})

	Describe("Run()", func() {
		It("turns invalid commands into error replies", func() {
			cmd, reply := command.Run(ctx, store, protocol.NewCommand("GET"))
			Expect(cmd).To(BeNil())
			Expect(reply).To(Equal(protocol.SimpleError(
				"ERR invalid command: wrong number of arguments for 'get' command")))
		})

		It("executes valid commands", func() {
			cmd, reply := command.Run(ctx, store, protocol.NewCommand("SET", "key", "value"))
			Expect(cmd.Name()).To(Equal(command.SET))
			Expect(reply).To(Equal(protocol.OK))
		})
	})
})
