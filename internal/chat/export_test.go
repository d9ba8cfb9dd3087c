package chat

import "time"

func (p *Poller) SetNow(now func() time.Time) { p.now = now }
