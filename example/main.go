// Command example sends one request to node 0, then prints whatever it
// hears for a minute. It expects an SX1276 breakout on a Raspberry Pi.
package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/host/v3"

	"github.com/headblockhead/lorafhss"
)

func main() {
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)
	if _, err := host.Init(); err != nil {
		log.WithError(err).Fatal("initializing host")
	}

	log.Info("Initializing device")
	hw, err := lorafhss.OpenHardware(lorafhss.HardwareConfig{
		SPIPort:  "/dev/spidev0.0",
		ResetPin: "GPIO25",
		DIO0Pin:  "GPIO24",
		DIO1Pin:  "GPIO23",
	})
	if err != nil {
		log.WithError(err).Fatal("opening hardware")
	}
	defer hw.Close()
	if err := lorafhss.Configure(hw.Bus, lorafhss.ModemConfig{FrequencyHz: 915000000}); err != nil {
		log.WithError(err).Fatal("configuring device")
	}

	table, err := lorafhss.GenerateFrequencyTable(11, 914000000, 200000, 11, lorafhss.MaxHopChannels)
	if err != nil {
		log.WithError(err).Fatal("building frequency table")
	}
	onPacket := func(m lorafhss.Message) {
		log.WithFields(logrus.Fields{
			"source": m.Header.Source,
			"kind":   m.Header.Kind,
			"snr":    m.Quality.SNR,
			"rssi":   m.Quality.RSSI,
		}).Infof("Received packet: %s", m.Payload)
	}
	node, err := lorafhss.New(hw.Bus, lorafhss.Options{
		ID:       1,
		Table:    table,
		Relisten: true,
		Logger:   log,
		Handler:  lorafhss.HandlerFuncs{Request: onPacket, Broadcast: onPacket},
	}, hw.DIO0, hw.DIO1)
	if err != nil {
		log.WithError(err).Fatal("creating node")
	}
	if err := node.Start(); err != nil {
		log.WithError(err).Fatal("starting node")
	}
	defer node.Close()

	log.Info("Sending packet")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := node.Request(ctx, 0, []byte("Hello World!")); err != nil {
		log.WithError(err).Error("sending packet")
	}

	log.Info("Starting receive")
	if err := node.Listen(); err != nil {
		log.WithError(err).Fatal("starting receive")
	}
	<-ctx.Done()
}
