package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	REDIS_KEY_BALANCE_PREFIX = "flightdeck:balance:"
	REDIS_KEY_JOURNAL_PREFIX = "flightdeck:journal:"

	// Balances are stored as integers of 1/10000 so stake (2 dp) times
	// multiplier (2 dp) credits stay exact.
	unitScale = 4

	journalCap = 500
)

// debitScript checks and decrements in one step so a balance can never go
// negative between the check and the write.
var debitScript = redis.NewScript(`
local balance = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
if balance < amount then
	return {0, balance}
end
return {1, redis.call('DECRBY', KEYS[1], amount)}
`)

// Redis keeps one account's balance in a Redis key.
type Redis struct {
	client  *redis.Client
	account string
	key     string
	journal Journal
}

// NewRedis binds a ledger to account, seeding opening only if the account
// does not exist yet.
func NewRedis(ctx context.Context, client *redis.Client, account string, opening decimal.Decimal, journal Journal) (*Redis, error) {
	units, err := toUnits(opening)
	if err != nil {
		return nil, err
	}
	key := REDIS_KEY_BALANCE_PREFIX + account
	if err := client.SetNX(ctx, key, units, 0).Err(); err != nil {
		return nil, fmt.Errorf("seed balance: %w", err)
	}
	return &Redis{
		client:  client,
		account: account,
		key:     key,
		journal: journal,
	}, nil
}

func (r *Redis) Balance(ctx context.Context) (decimal.Decimal, error) {
	units, err := r.client.Get(ctx, r.key).Int64()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return fromUnits(units), nil
}

func (r *Redis) Debit(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := validAmount(amount); err != nil {
		return decimal.Zero, err
	}
	units, err := toUnits(amount)
	if err != nil {
		return decimal.Zero, err
	}

	res, err := debitScript.Run(ctx, r.client, []string{r.key}, units).Int64Slice()
	if err != nil {
		return decimal.Zero, fmt.Errorf("debit: %w", err)
	}
	if len(res) != 2 {
		return decimal.Zero, fmt.Errorf("debit: unexpected script reply %v", res)
	}
	if res[0] == 0 {
		return fromUnits(res[1]), ErrInsufficientFunds
	}
	return fromUnits(res[1]), nil
}

func (r *Redis) Credit(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := validAmount(amount); err != nil {
		return decimal.Zero, err
	}
	units, err := toUnits(amount)
	if err != nil {
		return decimal.Zero, err
	}

	balance, err := r.client.IncrBy(ctx, r.key, units).Result()
	if err != nil {
		return decimal.Zero, fmt.Errorf("credit: %w", err)
	}
	return fromUnits(balance), nil
}

func (r *Redis) RecordTransaction(ctx context.Context, kind Kind, amount, balanceAfter decimal.Decimal) error {
	if r.journal == nil {
		return nil
	}
	return r.journal.Record(ctx, NewTransaction(r.account, kind, amount, balanceAfter))
}

// RedisJournal keeps a capped statement per account in a Redis list.
type RedisJournal struct {
	client *redis.Client
}

func NewRedisJournal(client *redis.Client) *RedisJournal {
	return &RedisJournal{client: client}
}

func (j *RedisJournal) Record(ctx context.Context, tx Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	key := REDIS_KEY_JOURNAL_PREFIX + tx.Account
	_, err = j.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, journalCap-1)
		return nil
	})
	return err
}

func (j *RedisJournal) Transactions(ctx context.Context, account string, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > journalCap {
		limit = journalCap
	}
	raw, err := j.client.LRange(ctx, REDIS_KEY_JOURNAL_PREFIX+account, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Transaction, 0, len(raw))
	for _, item := range raw {
		var tx Transaction
		if json.Unmarshal([]byte(item), &tx) == nil {
			out = append(out, tx)
		}
	}
	return out, nil
}

func toUnits(amount decimal.Decimal) (int64, error) {
	scaled := amount.Shift(unitScale)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, amount, unitScale)
	}
	return scaled.IntPart(), nil
}

func fromUnits(units int64) decimal.Decimal {
	return decimal.New(units, -unitScale)
}
