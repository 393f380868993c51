package transfer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultEnergyUnitPrice is used when the node's price history cannot be
// read or parsed, in sun per energy unit.
const DefaultEnergyUnitPrice int64 = 420

// parseLatestEnergyPrice extracts the newest price from the node's
// "timestamp:price,timestamp:price,..." history string.
func parseLatestEnergyPrice(energyPricesStr string) (int64, error) {
	energyPricesList := strings.Split(energyPricesStr, ",")
	if len(energyPricesList) == 0 {
		return DefaultEnergyUnitPrice, errors.New("empty energy prices")
	}

	lastPriceParts := strings.Split(energyPricesList[len(energyPricesList)-1], ":")
	if len(lastPriceParts) != 2 {
		return DefaultEnergyUnitPrice, fmt.Errorf("invalid format for energy price component: expected 'timestamp:price', got %q", lastPriceParts)
	}

	energyUnitPrice, err := strconv.ParseInt(lastPriceParts[1], 10, 64)
	if err != nil {
		return DefaultEnergyUnitPrice, fmt.Errorf("failed to parse energy unit price: %w", err)
	}

	return energyUnitPrice, nil
}
