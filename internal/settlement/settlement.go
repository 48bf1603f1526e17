// Package settlement computes and applies value transfers for purchases
// and resales.
//
// All legs of a payment are applied through the instruction's staging
// context after a single up-front balance check, so either every leg lands
// with the rest of the instruction or none does.
package settlement

import (
	"math/bits"

	"marketplace/internal/address"
	"marketplace/internal/models"
	"marketplace/internal/program"
)

// BasisPointsDenominator is 100% in basis points
const BasisPointsDenominator = 10000

// Settlement describes how a price was divided
type Settlement struct {
	Price       uint64 `json:"price"`
	Royalty     uint64 `json:"royalty"`
	NetToSeller uint64 `json:"net_to_seller"`
}

// Split divides price into a royalty and the seller's net.
// royalty = floor(price * bps / 10000) computed without overflow,
// and royalty + net == price always.
func Split(price uint64, royaltyBasisPoints uint16) (Settlement, error) {
	if royaltyBasisPoints > models.MaxRoyaltyBasisPoints {
		return Settlement{}, program.Errorf(program.KindInvalidArgument,
			"royalty basis points %d exceed %d", royaltyBasisPoints, models.MaxRoyaltyBasisPoints)
	}

	hi, lo := bits.Mul64(price, uint64(royaltyBasisPoints))
	royalty, _ := bits.Div64(hi, lo, BasisPointsDenominator)

	return Settlement{
		Price:       price,
		Royalty:     royalty,
		NetToSeller: price - royalty,
	}, nil
}

// Pay moves amount from payer to payee
func Pay(ctx program.Context, payer, payee address.Address, amount uint64) error {
	if err := ensureFunds(ctx, payer, amount); err != nil {
		return err
	}
	if err := ctx.Transfer(payer, payee, amount); err != nil {
		return err
	}
	ctx.Emit(program.Event{Name: program.EventPayment, Account: payee, Amount: amount})
	return nil
}

// PaySplit moves price from payer, the royalty to vendor and the rest to seller
func PaySplit(ctx program.Context, payer, seller, vendor address.Address, price uint64, royaltyBasisPoints uint16) (Settlement, error) {
	s, err := Split(price, royaltyBasisPoints)
	if err != nil {
		return s, err
	}
	if err := ensureFunds(ctx, payer, price); err != nil {
		return s, err
	}

	if s.Royalty > 0 {
		if err := ctx.Transfer(payer, vendor, s.Royalty); err != nil {
			return s, err
		}
		ctx.Emit(program.Event{Name: program.EventRoyalty, Account: vendor, Amount: s.Royalty})
	}
	if s.NetToSeller > 0 {
		if err := ctx.Transfer(payer, seller, s.NetToSeller); err != nil {
			return s, err
		}
		ctx.Emit(program.Event{Name: program.EventPayment, Account: seller, Amount: s.NetToSeller})
	}
	return s, nil
}

// ensureFunds checks payer can cover amount and still keep the reserve
func ensureFunds(ctx program.Context, payer address.Address, amount uint64) error {
	acct, err := ctx.Account(payer)
	if err != nil {
		return err
	}

	required, carry := bits.Add64(amount, ctx.MinReserve(), 0)
	if carry != 0 || acct.Lamports < required {
		return program.Errorf(program.KindInsufficientFunds,
			"payer %s has %d lamports, needs %d plus reserve %d",
			payer, acct.Lamports, amount, ctx.MinReserve())
	}
	return nil
}
