package model

// CounterDelta is one atomic increment applied to campaign counters.
type CounterDelta struct {
	Sent    int
	Failed  int
	Bounced int
}

// CampaignCounters is the counter snapshot returned by an atomic delta
// update. Finalization decisions are made from this snapshot, never from a
// worker-local view.
type CampaignCounters struct {
	Total   int
	Sent    int
	Failed  int
	Bounced int
	Skipped int
}

func (c CampaignCounters) Accounted() int {
	return c.Sent + c.Failed + c.Bounced + c.Skipped
}

func (c CampaignCounters) Complete() bool {
	return c.Total > 0 && c.Accounted() >= c.Total
}
