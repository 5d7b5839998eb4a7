package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/symbioticfi/points-indexer/internal/address"
	"github.com/symbioticfi/points-indexer/internal/u256"
)

// PutBlock records a block's timestamp and hash. Blocks are immutable
// once written, so a replayed insert is a no-op.
func (b *Batch) PutBlock(ctx context.Context, blk Block) error {
	return b.Exec(ctx, `
		INSERT INTO blocks (number, timestamp, hash) VALUES ($1,$2,$3)
		ON CONFLICT (number) DO NOTHING`,
		blk.Number, blk.Timestamp, blk.Hash[:])
}

// BlockAt reads one block's timestamp/hash.
func (s *Store) BlockAt(ctx context.Context, number uint64) (Block, error) {
	var blk Block
	var hashB []byte
	blk.Number = number
	row := s.QueryRow(ctx, `SELECT timestamp, hash FROM blocks WHERE number = $1`, number)
	if err := row.Scan(&blk.Timestamp, &hashB); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Block{}, ErrNotFound
		}
		return Block{}, classify("block_at", err)
	}
	copy(blk.Hash[:], hashB)
	return blk, nil
}

// PutCollateral upserts a token's static metadata.
func (b *Batch) PutCollateral(ctx context.Context, c Collateral) error {
	return b.Exec(ctx, `
		INSERT INTO collaterals (address, decimals, symbol, cmc_id) VALUES ($1,$2,$3,$4)
		ON CONFLICT (address) DO UPDATE SET decimals = EXCLUDED.decimals, symbol = EXCLUDED.symbol, cmc_id = EXCLUDED.cmc_id`,
		c.Address.Bytes(), c.Decimals, c.Symbol, c.CMCID)
}

// CollateralOf reads one token's metadata.
func (s *Store) CollateralOf(ctx context.Context, addr address.Address) (Collateral, error) {
	var c Collateral
	c.Address = addr
	row := s.QueryRow(ctx, `SELECT decimals, symbol, cmc_id FROM collaterals WHERE address = $1`, addr.Bytes())
	if err := row.Scan(&c.Decimals, &c.Symbol, &c.CMCID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Collateral{}, ErrNotFound
		}
		return Collateral{}, classify("collateral_of", err)
	}
	return c, nil
}

// PutPrice records one collateral's USD price at a given block. Prices are
// fetched out-of-band (CoinMarketCap/Alchemy) and hold at most one row per
// (collateral, block_number).
func (b *Batch) PutPrice(ctx context.Context, p Price) error {
	return b.Exec(ctx, `
		INSERT INTO prices (collateral, block_number, price) VALUES ($1,$2,$3)
		ON CONFLICT (collateral, block_number) DO UPDATE SET price = EXCLUDED.price`,
		p.Collateral.Bytes(), p.BlockNumber, p.Price.Dec())
}

// GetPrice returns the latest known price for collateral at or before
// block. Returns ErrNotFound if no price is known yet for this collateral
// at any block <= the one requested.
func (s *Store) GetPrice(ctx context.Context, collateral address.Address, block uint64) (*u256.Int, error) {
	var price string
	row := s.QueryRow(ctx, `
		SELECT price FROM prices
		WHERE collateral = $1 AND block_number <= $2
		ORDER BY block_number DESC LIMIT 1`, collateral.Bytes(), block)
	if err := row.Scan(&price); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classify("get_price", err)
	}
	return u256.MustFromDecimal(price), nil
}

// GetPrices returns the latest known price at or before block for every
// collateral in addrs, omitting any collateral with no known price yet.
// It calls GetPrice once per collateral.
func (s *Store) GetPrices(ctx context.Context, addrs []address.Address, block uint64) (map[address.Address]*u256.Int, error) {
	out := make(map[address.Address]*u256.Int, len(addrs))
	for _, a := range addrs {
		p, err := s.GetPrice(ctx, a, block)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("store: get_prices %s: %w", a, err)
		}
		out[a] = p
	}
	return out, nil
}
