package task

import (
	"flag"

	"git.fiblab.net/sim/syncer/v3"
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 100, "心跳日志间隔步数")
)

// heartbeat 心跳日志
func (ctx *Context) heartbeat() {
	_, step := ctx.clock.Now()
	if *heartBeatInterval <= 0 || step%int32(*heartBeatInterval) != 0 {
		return
	}
	hour, minute, second := ctx.clock.GetHourMinuteSecond()
	log.Infof(
		"STEP: %d(%d:%d:%.2f) objects: %d",
		step, hour, minute, second, ctx.ObjectCount(),
	)
}

// Run 在syncer的步进屏障下按配置步长运行
// 功能：每步先通知syncer准备完成，再推进一个步长，直到达到总步数或被syncer/Close终止
// 说明：单步失败只记录日志，模拟继续；循环结束后关闭任务
func (ctx *Context) Run(sidecar *syncer.Sidecar) {
	// init syncer
	sidecar.Step(false)
	for {
		_, step := ctx.clock.Now()
		log.Debugf("step %d: call NotifyStepReady", step)
		sidecar.NotifyStepReady()
		if err := ctx.Step(ctx.clock.DT); err != nil {
			log.Warnf("step %d: %v", step, err)
		}
		ctx.heartbeat()
		close := sidecar.Step(ctx.clock.Done())
		if close || ctx.closed.Load() {
			break
		}
	}
	log.Infof("engine complete")
	if err := ctx.Close(); err != nil {
		log.Errorf("close: %v", err)
	}
}
