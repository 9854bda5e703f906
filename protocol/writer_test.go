package protocol_test

import (
	"bytes"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/respkv/protocol"
)

var _ = Describe("Writer", func() {
	Describe("WriteOk", func() {
		It("writes the OK simple string", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteOk(w)).To(Succeed())
			Expect(w.String()).To(Equal("+OK\r\n"))
		})
	})

	Describe("WriteError", func() {
		It("writes a simple error", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteError(w, "ERR errMessage")).To(Succeed())
			Expect(w.String()).To(Equal("-ERR errMessage\r\n"))
		})

		It("keeps the error on a single line", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteError(w, "ERR multi\r\nline")).To(Succeed())
			Expect(w.String()).To(Equal("-ERR multi  line\r\n"))
		})
	})

	Describe("WriteCommand", func() {
		It("writes SET as an array of bulk strings", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteCommand(w, "SET", "key", "value")).To(Succeed())
			Expect(w.String()).To(Equal("*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n"))
		})

		It("writes GET as an array of bulk strings", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteCommand(w, "GET", "key")).To(Succeed())
			Expect(w.String()).To(Equal("*2\r\n$3\r\nGET\r\n$3\r\nkey\r\n"))
		})
	})

	Describe("WriteFrame", func() {
		It("writes the frame's canonical form", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteFrame(w, protocol.NullBulkString{})).To(Succeed())
			Expect(w.String()).To(Equal("$-1\r\n"))
		})
	})

	Describe("IsNull", func() {
		It("recognises both sentinels", func() {
			Expect(protocol.IsNull(protocol.NullBulkString{})).To(BeTrue())
			Expect(protocol.IsNull(protocol.NullArray{})).To(BeTrue())
			Expect(protocol.IsNull(protocol.BulkString("x"))).To(BeFalse())
		})
	})
})
