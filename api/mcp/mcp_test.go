package mcp_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chunkstore/api/mcp"
	"github.com/papercomputeco/chunkstore/pkg/logger"
	testutils "github.com/papercomputeco/chunkstore/pkg/utils/test"
)

var _ = Describe("MCP Server", func() {
	var (
		server       *mcp.Server
		vectorDriver *testutils.MockVectorDriver
	)

	BeforeEach(func() {
		vectorDriver = testutils.NewMockVectorDriver(3)

		var err error
		server, err = mcp.NewServer(mcp.Config{
			Driver: vectorDriver,
			Logger: logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("returns an error when vector driver is nil", func() {
			_, err := mcp.NewServer(mcp.Config{
				Logger: logger.Nop(),
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("vector driver is required"))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{
				Driver: vectorDriver,
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("logger is required"))
		})

		It("creates a noop server without a driver", func() {
			noop, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(noop.Handler()).NotTo(BeNil())
		})

		It("creates a server with valid config", func() {
			Expect(server).NotTo(BeNil())
		})

		It("returns an HTTP handler", func() {
			handler := server.Handler()
			Expect(handler).NotTo(BeNil())
		})
	})
})
