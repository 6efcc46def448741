package collector

import (
	"bufio"
	"context"
	"strconv"
	"strings"

	"github.com/ec-aaron/g292-z20/internal/cmdutils"
)

// FanInfo contains the chassis fan sensor readings.
type FanInfo struct {
	Sensors []FanSensor `json:"sensors,omitempty"`
}

// FanSensor describes one fan sensor as reported by the BMC.
type FanSensor struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	RPM    uint64 `json:"rpm"`
}

// Spinning reports whether the sensor is healthy and reads a nonzero speed.
func (s FanSensor) Spinning() bool {
	return s.Status == "ok" && s.RPM > 0
}

// SpinningCount returns the number of fans that are healthy and spinning.
func (i FanInfo) SpinningCount() int {
	n := 0
	for _, s := range i.Sensors {
		if s.Spinning() {
			n++
		}
	}
	return n
}

// CollectFans reads the fan sensor records from the BMC via ipmitool.
//
// Rows look like "FAN1 | 30h | ok | 29.1 | 8400 RPM". Sensors without a
// reading report "No Reading" in the last column and parse to 0 RPM.
func (c Collector) CollectFans(ctx context.Context) (FanInfo, error) {
	stdout, stderr, err := cmdutils.RunWithTimeout(ctx, defaultTimeout, c.opts.ipmiSdrCmd[0], c.opts.ipmiSdrCmd[1:]...)
	if err != nil {
		return FanInfo{}, newCollectionError(c.opts.ipmiSdrCmd, stderr.String(), err)
	}
	if stderr.Len() > 0 {
		c.log.Info("ipmitool output to stderr", "stderr", stderr)
	}

	info := FanInfo{}
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cols := strings.Split(line, "|")
		if len(cols) < 5 {
			c.log.Debug("skipping unexpected sensor row", "line", line)
			continue
		}
		for i := range cols {
			cols[i] = strings.TrimSpace(cols[i])
		}

		info.Sensors = append(info.Sensors, FanSensor{
			Name:   cols[0],
			Status: cols[2],
			RPM:    parseFanReading(c, cols[4]),
		})
	}
	if err := scanner.Err(); err != nil {
		return FanInfo{}, err
	}

	return info, nil
}

// parseFanReading converts a reading column such as "8400 RPM" to its speed.
// Anything without a leading number, like "No Reading" or "Disabled", is 0.
func parseFanReading(c Collector, reading string) uint64 {
	fields := strings.Fields(reading)
	if len(fields) == 0 {
		return 0
	}
	rpm, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0
	}
	if len(fields) < 2 || !strings.EqualFold(fields[1], "RPM") {
		c.log.Debug("fan reading without RPM unit", "reading", reading)
	}
	return rpm
}
