package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/FluffyKebab/mothra/config"
	"github.com/FluffyKebab/mothra/peer"
	"github.com/FluffyKebab/mothra/rpc"
	"github.com/FluffyKebab/mothra/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var startConfig = config.Default()

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a node",
	Long: `Start a node and keep it running until interrupted.

Examples:
  # Start a node keeping its key in ./data
  mothra start --datadir=./data --port=9000 --topics=blocks

  # Start a second node connecting to the first
  mothra start --datadir=./data2 --port=9001 --boot-nodes=127.0.0.1:9000 --topics=blocks`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
	config.BindFlags(startCmd.Flags(), &startConfig)
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg := startConfig
	err := cfg.Validate()
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(cfg.DebugLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	h := &logHandler{logger: logger.Named("handler")}
	s, err := session.New(cfg, session.WithLogger(logger), session.WithHandler(h))
	if err != nil {
		return err
	}
	h.session = s

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = s.Start(ctx)
	if err != nil {
		return err
	}

	if cfg.MetricsAddress != "" {
		go func() {
			err := s.Metrics().Serve(ctx, cfg.MetricsAddress, logger)
			if err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return s.Close()
}

// logHandler logs every event and answers "ping" requests with their own
// payload.
type logHandler struct {
	logger  *zap.Logger
	session *session.Session
}

func (h *logHandler) OnPeerDiscovered(p peer.ID) {
	h.logger.Info("peer discovered", zap.String("peer", p.String()))
}

func (h *logHandler) OnGossip(topic string, data []byte) {
	h.logger.Info("gossip", zap.String("topic", topic), zap.Int("size", len(data)))
}

func (h *logHandler) OnRPC(method string, dir rpc.Direction, p peer.ID, data []byte) {
	h.logger.Info("rpc",
		zap.String("method", method),
		zap.Stringer("direction", dir),
		zap.String("peer", p.ShortString()),
		zap.Int("size", len(data)),
	)
	if dir != rpc.Request || method != "ping" {
		return
	}

	err := h.session.SendRPCResponse(method, p, data)
	if err != nil {
		h.logger.Warn("answering ping", zap.Error(err))
	}
}

func (h *logHandler) OnRPCTimeout(method string, p peer.ID) {
	h.logger.Warn("rpc timed out", zap.String("method", method), zap.String("peer", p.ShortString()))
}
