package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// EVMOptions parameterise the on-chain transfer source.
type EVMOptions struct {
	RPCURL string
	// Token restricts the scan to one ERC-20 contract. Empty scans all
	// Transfer events touching the address, which most RPC providers cap.
	Token string
	// BlockWindow is how far behind the head the log scan starts.
	BlockWindow uint64
	Timeout     time.Duration
	// Decimals used to scale raw token units. ERC-20 default is 18.
	Decimals int32
}

// EVMSource reads ERC-20 Transfer events straight from an Ethereum node and
// presents them as TransferRecords, so EVM wallets can feed the same
// pipeline as indexer-backed ones.
type EVMSource struct {
	opts      EVMOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex

	headerMux sync.Mutex
	headers   map[uint64]uint64 // block number -> unix timestamp
}

// NewEVMSource builds an on-chain transfer source.
func NewEVMSource(opts EVMOptions, logger zerolog.Logger) *EVMSource {
	if opts.BlockWindow == 0 {
		opts.BlockWindow = 50_000
	}
	if opts.Decimals == 0 {
		opts.Decimals = 18
	}
	return &EVMSource{
		opts:    opts,
		logger:  logger.With().Str("component", "evm_source").Logger(),
		headers: make(map[uint64]uint64),
	}
}

// Transfers scans Transfer logs where the address is sender or recipient
// within the configured block window, oldest first.
func (s *EVMSource) Transfers(ctx context.Context, address string, limit int) ([]TransferRecord, error) {
	if s.opts.RPCURL == "" {
		return nil, errors.New("ethereum rpc url not configured")
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("not a hex address: %s", address)
	}

	timeout := s.opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}

	head, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch head block: %w", err)
	}
	from := uint64(0)
	if head > s.opts.BlockWindow {
		from = head - s.opts.BlockWindow
	}

	addrTopic := common.BytesToHash(common.HexToAddress(address).Bytes())
	var contracts []common.Address
	if s.opts.Token != "" {
		contracts = []common.Address{common.HexToAddress(s.opts.Token)}
	}

	outgoing, err := client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: contracts,
		Topics:    [][]common.Hash{{transferTopic}, {addrTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("filter outgoing transfers: %w", err)
	}

	incoming, err := client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: contracts,
		Topics:    [][]common.Hash{{transferTopic}, nil, {addrTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("filter incoming transfers: %w", err)
	}

	logs := append(outgoing, incoming...)
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	records := make([]TransferRecord, 0, len(logs))
	for _, lg := range logs {
		rec, ok := s.toRecord(ctx, client, lg)
		if !ok {
			continue
		}
		records = append(records, rec)
		if limit > 0 && len(records) >= limit {
			break
		}
	}

	s.logger.Debug().
		Str("address", address).
		Uint64("from_block", from).
		Int("records", len(records)).
		Msg("scanned transfer logs")

	return records, nil
}

func (s *EVMSource) toRecord(ctx context.Context, client *ethclient.Client, lg types.Log) (TransferRecord, bool) {
	if len(lg.Topics) < 3 {
		return TransferRecord{}, false
	}

	ts, err := s.blockTimestamp(ctx, client, lg.BlockNumber)
	if err != nil {
		s.logger.Warn().Err(err).Uint64("block", lg.BlockNumber).Msg("skip log without block timestamp")
		return TransferRecord{}, false
	}

	raw := new(big.Int).SetBytes(lg.Data)
	return TransferRecord{
		Signature: fmt.Sprintf("%s-%d", lg.TxHash.Hex(), lg.Index),
		From:      common.BytesToAddress(lg.Topics[1].Bytes()).Hex(),
		To:        common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
		Amount:    decimal.NewFromBigInt(raw, -s.opts.Decimals),
		Token:     lg.Address.Hex(),
		Timestamp: int64(ts),
		TxType:    "erc20_transfer",
	}, true
}

func (s *EVMSource) blockTimestamp(ctx context.Context, client *ethclient.Client, number uint64) (uint64, error) {
	s.headerMux.Lock()
	ts, ok := s.headers[number]
	s.headerMux.Unlock()
	if ok {
		return ts, nil
	}

	header, err := client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	s.headerMux.Lock()
	s.headers[number] = header.Time
	s.headerMux.Unlock()
	return header.Time, nil
}

func (s *EVMSource) getClient(ctx context.Context) (*ethclient.Client, error) {
	s.clientMux.Lock()
	defer s.clientMux.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	client, err := ethclient.DialContext(ctx, s.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	s.client = client
	return client, nil
}

var _ TransferSource = (*EVMSource)(nil)
