package irr

// Pipeline amortises request/response latency across many queries against
// one Client: queries are written back-to-back onto the wire, bounded by a
// sender-side buffer cap, while responses are streamed back in submission
// order (spec.md §4.1). The caller may begin consuming Responses() before
// all queries have been submitted.
//
// A Pipeline owns single-writer/single-reader access to its Client for its
// lifetime; do not use the Client directly while a Pipeline is active.
type Pipeline struct {
	client    *Client
	submitted chan Query
	sem       chan struct{}
	responses chan Response
	writeErr  chan error
}

// NewPipeline starts a pipeline against c with at most bufCap queries
// outstanding (written but not yet answered) at once.
func NewPipeline(c *Client, bufCap int) *Pipeline {
	if bufCap < 1 {
		bufCap = 1
	}
	p := &Pipeline{
		client:    c,
		submitted: make(chan Query, bufCap),
		sem:       make(chan struct{}, bufCap),
		responses: make(chan Response, bufCap),
		writeErr:  make(chan error, 1),
	}
	go p.readLoop()
	return p
}

// Submit enqueues a query for writing. It blocks while bufCap queries are
// already outstanding on the wire (flow control against server overrun).
func (p *Pipeline) Submit(q Query) error {
	select {
	case err := <-p.writeErr:
		p.writeErr <- err
		return err
	default:
	}
	p.sem <- struct{}{}
	if err := p.client.sendQuery(q); err != nil {
		<-p.sem
		select {
		case p.writeErr <- err:
		default:
		}
		return err
	}
	p.submitted <- q
	return nil
}

// Close signals that no further queries will be submitted. Responses()
// closes once every submitted query has been answered.
func (p *Pipeline) Close() {
	close(p.submitted)
}

// Responses returns the channel of answers, delivered strictly in submission
// order, matching IRRd's FIFO protocol semantics.
func (p *Pipeline) Responses() <-chan Response {
	return p.responses
}

func (p *Pipeline) readLoop() {
	defer close(p.responses)
	for q := range p.submitted {
		resp := p.client.readResponse(q)
		<-p.sem
		p.responses <- resp
	}
}

// FanOut runs seed queries through the pipeline and, for every response,
// invokes followUp to generate zero or more follow-up queries which are fed
// back into the same pipeline (spec.md §4.1 "pipeline_from_initial"). It
// collects every response — seed and follow-up alike — and returns them once
// all outstanding work has drained. Order across generations is not
// guaranteed, but responses to queries submitted in the same generation
// preserve submission order relative to each other.
func FanOut(c *Client, bufCap int, seed []Query, followUp func(Response) []Query) ([]Response, error) {
	p := NewPipeline(c, bufCap)
	var all []Response
	outstanding := 0

	submit := func(qs []Query) error {
		for _, q := range qs {
			if err := p.Submit(q); err != nil {
				return err
			}
			outstanding++
		}
		return nil
	}

	if err := submit(seed); err != nil {
		p.Close()
		drain(p)
		return nil, err
	}
	if outstanding == 0 {
		p.Close()
		return nil, nil
	}

	closed := false
	for resp := range p.responses {
		outstanding--
		all = append(all, resp)
		more := followUp(resp)
		if len(more) > 0 {
			if err := submit(more); err != nil {
				if !closed {
					p.Close()
					closed = true
				}
				drain(p)
				return all, err
			}
		}
		if outstanding == 0 {
			if !closed {
				p.Close()
				closed = true
			}
		}
	}
	return all, nil
}

func drain(p *Pipeline) {
	for range p.responses {
	}
}
