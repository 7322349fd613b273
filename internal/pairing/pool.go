package pairing

// waitingPool keeps waiting connections in arrival order.
type waitingPool struct {
	ids []ConnID
}

func (p *waitingPool) push(id ConnID) {
	p.ids = append(p.ids, id)
}

func (p *waitingPool) removeAt(i int) {
	copy(p.ids[i:], p.ids[i+1:])
	p.ids[len(p.ids)-1] = ""
	p.ids = p.ids[:len(p.ids)-1]
}

func (p *waitingPool) remove(id ConnID) bool {
	for i, v := range p.ids {
		if v == id {
			p.removeAt(i)
			return true
		}
	}
	return false
}

func (p *waitingPool) len() int {
	return len(p.ids)
}
