package client

import "time"

type sample struct {
	at   time.Time
	x, y float64
}

// positionBuffer 远端实体按接收时间排序的权威位置样本
type positionBuffer struct {
	samples []sample
}

func (b *positionBuffer) push(s sample) {
	b.samples = append(b.samples, s)
}

// at 丢弃过旧样本后，在夹住 render 的两个样本之间线性插值
func (b *positionBuffer) at(render time.Time) (x, y float64, ok bool) {
	drop := 0
	for len(b.samples)-drop >= 2 && !b.samples[drop+1].at.After(render) {
		drop++
	}
	if drop > 0 {
		b.samples = append(b.samples[:0], b.samples[drop:]...)
	}

	if len(b.samples) < 2 {
		return 0, 0, false
	}
	s0, s1 := b.samples[0], b.samples[1]
	if render.Before(s0.at) || render.After(s1.at) {
		return 0, 0, false
	}
	// 丢弃循环保证 s1.at > render >= s0.at，分母不为零
	f := float64(render.Sub(s0.at)) / float64(s1.at.Sub(s0.at))
	return s0.x + (s1.x-s0.x)*f, s0.y + (s1.y-s0.y)*f, true
}
