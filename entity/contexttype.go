package entity

import (
	"github.com/tsinghua-fib-lab/scenario-gateway/clock"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/config"
)

type ITaskContext interface {
	Clock() *clock.Clock
	RoadNetwork() IRoadNetwork
	RuntimeConfig() *config.RuntimeConfig
}
