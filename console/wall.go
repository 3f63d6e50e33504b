// Copyright 2025 Cihan Bekem
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"sync"

	"github.com/cihanbekem/price-sim/esl"
)

// WallView is the live board's derived view: one card per label, newest
// first. Unlike the tabular lists it consumes the raw per-event feed, so no
// intermediate state is coalesced away. Register ApplyEvent with
// cache.OnEvent after loading the initial cards from FetchWall.
type WallView struct {
	mu    sync.Mutex
	cards []esl.WallCard
}

func NewWallView() *WallView {
	return &WallView{}
}

// Load replaces the board with a wall snapshot.
func (w *WallView) Load(cards []esl.WallCard) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cards = make([]esl.WallCard, len(cards))
	copy(w.cards, cards)
}

// ApplyEvent folds one event into the board.
func (w *WallView) ApplyEvent(ev esl.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch e := ev.(type) {
	case *esl.LabelCreatedEvent:
		for _, card := range w.cards {
			if card.Label.ID == e.Label.ID {
				return // duplicate delivery
			}
		}
		w.cards = append([]esl.WallCard{{Label: e.Label, Product: e.Label.Product}}, w.cards...)
	case *esl.LabelUpdatedEvent:
		for i := range w.cards {
			if w.cards[i].Label.ID != e.LabelID {
				continue
			}
			if e.Label != nil {
				w.cards[i].Label = *e.Label
			}
			w.cards[i].Product = e.Product
		}
	case *esl.LabelAssignedEvent:
		for i := range w.cards {
			if w.cards[i].Label.ID == e.LabelID {
				w.cards[i].Product = e.Product
			}
		}
	case *esl.LabelUnassignedEvent:
		for i := range w.cards {
			if w.cards[i].Label.ID == e.LabelID {
				w.cards[i].Product = nil
			}
		}
	case *esl.ProductUpdatedEvent:
		for i := range w.cards {
			p := w.cards[i].Product
			if p == nil || p.ID != e.Product.ID {
				continue
			}
			updated := *p
			updated.Price = e.Product.Price
			updated.Name = e.Product.Name
			updated.Currency = e.Product.Currency
			w.cards[i].Product = &updated
		}
	case *esl.LabelDeletedEvent:
		kept := w.cards[:0]
		for _, card := range w.cards {
			if card.Label.ID != e.LabelID {
				kept = append(kept, card)
			}
		}
		w.cards = kept
	}
}

// Cards returns a copy of the board.
func (w *WallView) Cards() []esl.WallCard {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]esl.WallCard, len(w.cards))
	copy(out, w.cards)
	return out
}
