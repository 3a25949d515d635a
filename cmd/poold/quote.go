package main

import (
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"poolEngine/internal/amm"
)

func runQuote(cmd *cobra.Command, _ []string) error {
	amountIn, err := flagBigInt(cmd, "amount-in")
	if err != nil {
		return err
	}
	reserveIn, err := flagBigInt(cmd, "reserve-in")
	if err != nil {
		return err
	}
	reserveOut, err := flagBigInt(cmd, "reserve-out")
	if err != nil {
		return err
	}
	noFee, _ := cmd.Flags().GetBool("no-fee")

	var out *big.Int
	if noFee {
		out, err = amm.Quote(amountIn, reserveIn, reserveOut)
	} else {
		out, err = amm.GetAmountOut(amountIn, reserveIn, reserveOut)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), out.String())
	return nil
}

func flagBigInt(cmd *cobra.Command, name string) (*big.Int, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return nil, fmt.Errorf("--%s is required", name)
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid --%s: %q", name, raw)
	}
	return v, nil
}
