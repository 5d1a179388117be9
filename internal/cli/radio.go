package cli

import (
	"github.com/pkg/errors"
	"periph.io/x/host/v3"

	"github.com/headblockhead/lorafhss"
)

// openNode initializes the host drivers, configures the module and starts a
// node on it. The returned function stops the node and releases the hardware.
func openNode(handler lorafhss.Handler) (*lorafhss.Node, func(), error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, errors.Wrap(err, "initialize host")
	}
	hw, err := lorafhss.OpenHardware(cfg.HardwareConfig())
	if err != nil {
		return nil, nil, err
	}
	if err := lorafhss.Configure(hw.Bus, cfg.ModemConfig()); err != nil {
		hw.Close()
		return nil, nil, errors.Wrap(err, "configure module")
	}
	table, err := cfg.Table()
	if err != nil {
		hw.Close()
		return nil, nil, err
	}
	node, err := lorafhss.New(hw.Bus, lorafhss.Options{
		ID:       cfg.NodeID,
		Table:    table,
		Retry:    cfg.Retry,
		Timeout:  cfg.Timeout,
		Relisten: cfg.Relisten,
		Handler:  handler,
		Logger:   log,
	}, hw.DIO0, hw.DIO1)
	if err != nil {
		hw.Close()
		return nil, nil, err
	}
	if err := node.Start(); err != nil {
		hw.Close()
		return nil, nil, err
	}
	return node, func() {
		if err := node.Close(); err != nil {
			log.WithError(err).Warn("close node")
		}
		hw.Close()
	}, nil
}
