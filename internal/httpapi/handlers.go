package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bitfsorg/libdividends-go/dividends"
	"github.com/bitfsorg/libdividends-go/ledger"
)

// InstanceView summarises one instance.
type InstanceView struct {
	Address        string `json:"address"`
	Name           string `json:"name"`
	Symbol         string `json:"symbol"`
	Decimals       uint8  `json:"decimals"`
	Payment        string `json:"payment"`
	Asset          string `json:"asset,omitempty"`
	TotalSupply    uint64 `json:"total_supply"`
	Holders        int    `json:"holders"`
	TotalAccounted string `json:"total_accounted"`
	TotalReleased  uint64 `json:"total_released"`
}

// HolderView is one account's position in an instance.
type HolderView struct {
	Address  string `json:"address"`
	Shares   uint64 `json:"shares"`
	Pending  uint64 `json:"pending"`
	Withheld uint64 `json:"withheld"`
	Released uint64 `json:"released"`
}

func instanceView(tok *dividends.Token) InstanceView {
	v := InstanceView{
		Address:        tok.Address().String(),
		Name:           tok.Name(),
		Symbol:         tok.Symbol(),
		Decimals:       tok.Decimals(),
		Payment:        string(tok.Kind()),
		TotalSupply:    tok.TotalSupply(),
		Holders:        len(tok.Holders()),
		TotalAccounted: tok.TotalAccounted().String(),
		TotalReleased:  tok.TotalReleased(),
	}
	if asset := tok.PaymentAsset(); !asset.IsZero() {
		v.Asset = asset.String()
	}
	return v
}

func (s *Server) handleListInstances(w http.ResponseWriter, _ *http.Request) {
	views := make([]InstanceView, 0, len(s.order))
	for _, addr := range s.order {
		views = append(views, instanceView(s.instances[addr]))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	tok, ok := s.instance(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, instanceView(tok))
}

func (s *Server) handleListHolders(w http.ResponseWriter, r *http.Request) {
	tok, ok := s.instance(w, r)
	if !ok {
		return
	}
	holders := tok.Holders()
	views := make([]HolderView, 0, len(holders))
	for _, h := range holders {
		v, err := holderView(r, tok, h.Address)
		if err != nil {
			s.writeError(w, r, http.StatusBadGateway, err)
			return
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetHolder(w http.ResponseWriter, r *http.Request) {
	tok, ok := s.instance(w, r)
	if !ok {
		return
	}
	addr, err := ledger.ParseAddress(chi.URLParam(r, "holder"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	v, err := holderView(r, tok, addr)
	if err != nil {
		s.writeError(w, r, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// holderView syncs the instance first, so a failing gateway surfaces here.
func holderView(r *http.Request, tok *dividends.Token, addr ledger.Address) (HolderView, error) {
	pending, err := tok.PendingPayment(r.Context(), addr)
	if err != nil {
		return HolderView{}, err
	}
	return HolderView{
		Address:  addr.String(),
		Shares:   tok.BalanceOf(addr),
		Pending:  pending,
		Withheld: tok.Withheld(addr),
		Released: tok.Released(addr),
	}, nil
}
