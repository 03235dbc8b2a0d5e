package tenant

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"resto-platform/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	tenants map[string]*models.Tenant
	calls   int
}

func (f *fakeRegistry) TenantByRoutingKey(_ context.Context, key string) (*models.Tenant, error) {
	f.calls++
	return f.tenants[key], nil
}

func testCipher(t *testing.T) *DescriptorCipher {
	t.Helper()
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	c, err := NewDescriptorCipher(key)
	require.NoError(t, err)
	return c
}

func sealed(t *testing.T, c *DescriptorCipher, dsn string) string {
	t.Helper()
	enc, err := c.Encrypt(dsn)
	require.NoError(t, err)
	return enc
}

func TestResolveDecryptsDescriptor(t *testing.T) {
	cipher := testCipher(t)
	reg := &fakeRegistry{tenants: map[string]*models.Tenant{
		"pizzeria": {
			ID:           1,
			RoutingKey:   "pizzeria",
			EncryptedDSN: sealed(t, cipher, "postgres://t1"),
		},
	}}
	r := NewResolver(reg, cipher, time.Minute)

	handle, err := r.Resolve(context.Background(), "pizzeria.orders.example.com:8080")
	require.NoError(t, err)
	require.NotNil(t, handle)
	assert.Equal(t, int64(1), handle.ID)
	assert.Equal(t, "postgres://t1", handle.DSN)
}

func TestResolveCachesWithinTTL(t *testing.T) {
	cipher := testCipher(t)
	reg := &fakeRegistry{tenants: map[string]*models.Tenant{
		"pizzeria": {ID: 1, RoutingKey: "pizzeria", EncryptedDSN: sealed(t, cipher, "dsn")},
	}}
	r := NewResolver(reg, cipher, time.Minute)

	for i := 0; i < 5; i++ {
		_, err := r.Resolve(context.Background(), "pizzeria.orders.example.com")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, reg.calls)
}

func TestResolveBlockedTenant(t *testing.T) {
	cipher := testCipher(t)
	reg := &fakeRegistry{tenants: map[string]*models.Tenant{
		"frozen": {ID: 2, RoutingKey: "frozen", Blocked: true},
	}}
	r := NewResolver(reg, cipher, time.Minute)

	_, err := r.Resolve(context.Background(), "frozen.orders.example.com")
	assert.ErrorIs(t, err, models.ErrTenantBlocked)

	// The blocked verdict is cached too.
	_, err = r.Resolve(context.Background(), "frozen.orders.example.com")
	assert.ErrorIs(t, err, models.ErrTenantBlocked)
	assert.Equal(t, 1, reg.calls)
}

func TestResolveUnknownKeyIsPlatform(t *testing.T) {
	r := NewResolver(&fakeRegistry{}, testCipher(t), time.Minute)

	handle, err := r.Resolve(context.Background(), "nobody.orders.example.com")
	require.NoError(t, err)
	assert.Nil(t, handle)
}

func TestResolveBareHostIsPlatform(t *testing.T) {
	reg := &fakeRegistry{}
	r := NewResolver(reg, testCipher(t), time.Minute)

	handle, err := r.Resolve(context.Background(), "localhost:8080")
	require.NoError(t, err)
	assert.Nil(t, handle)
	assert.Zero(t, reg.calls)
}

func TestInvalidateForcesReRead(t *testing.T) {
	cipher := testCipher(t)
	reg := &fakeRegistry{tenants: map[string]*models.Tenant{
		"pizzeria": {ID: 1, RoutingKey: "pizzeria", EncryptedDSN: sealed(t, cipher, "old")},
	}}
	r := NewResolver(reg, cipher, time.Hour)

	handle, err := r.Resolve(context.Background(), "pizzeria.orders.example.com")
	require.NoError(t, err)
	assert.Equal(t, "old", handle.DSN)

	reg.tenants["pizzeria"].EncryptedDSN = sealed(t, cipher, "rotated")
	r.Invalidate("pizzeria")

	handle, err = r.Resolve(context.Background(), "pizzeria.orders.example.com")
	require.NoError(t, err)
	assert.Equal(t, "rotated", handle.DSN)
	assert.Equal(t, 2, reg.calls)
}

func TestRoutingKey(t *testing.T) {
	cases := map[string]string{
		"pizzeria.orders.example.com":      "pizzeria",
		"pizzeria.orders.example.com:8080": "pizzeria",
		"orders.example.com":               "",
		"localhost":                        "",
		"localhost:8080":                   "",
		"127.0.0.1":                        "",
		"127.0.0.1:8080":                   "",
	}
	for host, want := range cases {
		assert.Equal(t, want, RoutingKey(host), "host %q", host)
	}
}

func TestDescriptorCipherRoundTrip(t *testing.T) {
	c := testCipher(t)

	enc, err := c.Encrypt("postgres://app:secret@db/t1")
	require.NoError(t, err)
	assert.NotEqual(t, "postgres://app:secret@db/t1", enc)

	dec, err := c.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "postgres://app:secret@db/t1", dec)
}

func TestDescriptorCipherRejectsTampering(t *testing.T) {
	c := testCipher(t)

	enc, err := c.Encrypt("postgres://app:secret@db/t1")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(enc)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff

	_, err = c.Decrypt(base64.StdEncoding.EncodeToString(raw))
	assert.Error(t, err)
}
