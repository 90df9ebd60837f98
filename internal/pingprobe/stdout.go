package pingprobe

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	transmittedRe = regexp.MustCompile(`(\d+)\s+packets transmitted`)
	receivedRe    = regexp.MustCompile(`(\d+)\s+received`)
	packetLossRe  = regexp.MustCompile(`(\d+(\.\d+)?)% packet loss`)
	rttRe         = regexp.MustCompile(`rtt min/avg/max/mdev = ([\d.]+)/([\d.]+)/([\d.]+)/([\d.]+)`)
)

// pingStats is the parsed shape of a rapid-ping debug action's stdout,
// mirroring original_source/dbrecorder.py::_parsepingstdout.
type pingStats struct {
	Transmitted int
	Received    int
	PacketLoss  float64
	RTTMin      float64
	RTTAvg      float64
	RTTMax      float64
	RTTMdev     float64
}

func parsePingStdout(stdout string) pingStats {
	var s pingStats
	for _, line := range strings.Split(stdout, "\n") {
		if m := transmittedRe.FindStringSubmatch(line); m != nil {
			s.Transmitted, _ = strconv.Atoi(m[1])
		}
		if m := receivedRe.FindStringSubmatch(line); m != nil {
			s.Received, _ = strconv.Atoi(m[1])
		}
		if m := packetLossRe.FindStringSubmatch(line); m != nil {
			s.PacketLoss, _ = strconv.ParseFloat(m[1], 64)
		}
		if m := rttRe.FindStringSubmatch(line); m != nil {
			s.RTTMin, _ = strconv.ParseFloat(m[1], 64)
			s.RTTAvg, _ = strconv.ParseFloat(m[2], 64)
			s.RTTMax, _ = strconv.ParseFloat(m[3], 64)
			s.RTTMdev, _ = strconv.ParseFloat(m[4], 64)
		}
	}
	return s
}

// failed reports whether the probe should be recorded as failed, per
// original_source/dbrecorder.py::recordpingresults.
func (s pingStats) failed() bool {
	return s.Transmitted == 0 || s.Received == 0 || s.PacketLoss > 0.0
}
