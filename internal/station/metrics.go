package station

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	packetsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtlhass_packets_received_total",
		Help: "JSON packets read from the decoder subprocess",
	})
	packetsForeign = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtlhass_packets_foreign_total",
		Help: "Packets discarded because id or model did not match the configured station",
	})
	packetsMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtlhass_packets_malformed_total",
		Help: "Lines discarded as invalid JSON or packets with missing/mistyped fields",
	})
	readingsParsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtlhass_readings_parsed_total",
		Help: "Packets successfully converted into typed readings",
	})
)
