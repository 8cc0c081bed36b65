// Copyright 2026 The P2P Authors
// This file is part of the P2P library.
//
// The P2P library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The P2P library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the P2P library. If not, see <http://www.gnu.org/licenses/>.

package node

import (
	"time"

	metrics "github.com/rcrowley/go-metrics"
)

const metricsReportInterval = 60 * time.Second

// reportMetricsLoop periodically logs the non-zero protocol meters. It runs
// only when metrics reporting is enabled in the config.
func (n *Node) reportMetricsLoop(quit <-chan struct{}) {
	ticker := time.NewTicker(metricsReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			n.reportMetricsOnce()
		}
	}
}

func (n *Node) reportMetricsOnce() {
	metrics.DefaultRegistry.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case metrics.Meter:
			if count := m.Snapshot().Count(); count > 0 {
				logger.Debug("meter", "name", name, "count", count)
			}
		case metrics.Gauge:
			if v := m.Snapshot().Value(); v != 0 {
				logger.Debug("gauge", "name", name, "value", v)
			}
		case metrics.Counter:
			if count := m.Snapshot().Count(); count > 0 {
				logger.Debug("counter", "name", name, "count", count)
			}
		}
	})
}
