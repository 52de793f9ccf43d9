package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
)

func TestPassportServiceAnchor(t *testing.T) {
	f := newPassportFixture(t, true)
	ctx := context.Background()

	anchor, err := f.svc.Anchor(ctx, "DPP001")
	require.NoError(t, err)
	assert.Regexp(t, `^0x[0-9a-f]{64}$`, anchor.TxHash)
	assert.Regexp(t, `^[0-9a-f]{64}$`, anchor.DataHash)
	assert.GreaterOrEqual(t, anchor.BlockNumber, int64(baseBlockNumber))

	again, err := f.svc.Anchor(ctx, "DPP001")
	require.NoError(t, err)
	assert.Equal(t, anchor.DataHash, again.DataHash, "unchanged content hashes the same")
	assert.NotEqual(t, anchor.TxHash, again.TxHash)

	_, err = f.svc.Extend(ctx, "DPP001", json.RawMessage(`{"capacityKwh":90}`), nil)
	require.NoError(t, err)
	changed, err := f.svc.Anchor(ctx, "DPP001")
	require.NoError(t, err)
	assert.NotEqual(t, anchor.DataHash, changed.DataHash)
}

func TestPassportServiceTransferMovesToken(t *testing.T) {
	f := newPassportFixture(t, true)
	ctx := context.Background()

	token, err := f.svc.MintToken(ctx, "DPP001")
	require.NoError(t, err)
	assert.Equal(t, "GreenTech Industries", token.Owner)

	p, err := f.svc.TransferOwnership(ctx, "DPP001", "Recycler AB", "end of life")
	require.NoError(t, err)
	assert.Equal(t, "Recycler AB", p.Owner)
	require.NotNil(t, p.Token)
	assert.Equal(t, "Recycler AB", p.Token.Owner)

	custody, err := f.svc.Custody(ctx, "DPP001")
	require.NoError(t, err)
	require.Len(t, custody, 2)
	assert.Equal(t, "GreenTech Industries", custody[1].From)
	assert.Equal(t, "Recycler AB", custody[1].To)

	_, err = f.svc.TransferOwnership(ctx, "DPP001", "Recycler AB", "")
	assert.ErrorIs(t, err, domain.ErrValidation, "already the owner")

	_, err = f.svc.TransferOwnership(ctx, "DPP001", " ", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPassportServiceMintToken(t *testing.T) {
	f := newPassportFixture(t, true)
	ctx := context.Background()

	token, err := f.svc.MintToken(ctx, "DPP001")
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{32}$`, token.TokenID)
	assert.Equal(t, TokenActive, token.Status)
	assert.Equal(t, tokenStandard, token.Standard)
	assert.Equal(t, "/token/metadata/"+token.TokenID, token.MetadataURI)

	_, err = f.svc.MintToken(ctx, "DPP001")
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	meta, err := f.svc.TokenMetadata(ctx, token.TokenID)
	require.NoError(t, err)
	assert.Equal(t, "EcoCharge Battery Pack", meta.Name)
	assert.Equal(t, "/dpp/DPP001", meta.ExternalURL)

	status, err := f.svc.TokenStatus(ctx, token.TokenID)
	require.NoError(t, err)
	assert.Equal(t, TokenActive, status.Status)
	assert.Equal(t, "DPP001", status.ProductID)

	_, err = f.svc.Update(ctx, "DPP001", PassportInput{ProductName: "EcoCharge Battery Pack", Status: string(domain.PassportRecalled)})
	require.NoError(t, err)
	status, err = f.svc.TokenStatus(ctx, token.TokenID)
	require.NoError(t, err)
	assert.Equal(t, TokenFrozen, status.Status)

	_, err = f.svc.TokenStatus(ctx, "deadbeef")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.TokenMetadata(ctx, " ")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.AddLifecycleEvent(ctx, "DPP002", LifecycleEventInput{EventType: "disposed"})
	require.NoError(t, err)
	_, err = f.svc.MintToken(ctx, "DPP002")
	assert.ErrorIs(t, err, domain.ErrValidation, "archived passports cannot be tokenized")
}

func TestPassportServiceProofRoundTrip(t *testing.T) {
	f := newPassportFixture(t, true)
	ctx := context.Background()

	proof, err := f.svc.GenerateProof(ctx, "DPP001", ClaimCompliant)
	require.NoError(t, err)
	assert.Equal(t, proofScheme, proof.Scheme)
	assert.Equal(t, []string{"DPP001", ClaimCompliant}, proof.PublicSignals)

	in := ProofInput{ProofID: proof.ProofID, ProductID: proof.ProductID, Claim: proof.Claim, Commitment: strings.ToUpper(proof.Commitment)}
	res, err := f.svc.VerifyProof(ctx, in)
	require.NoError(t, err)
	assert.True(t, res.Valid, res.Reason)

	tampered := in
	tampered.Claim = ClaimActive
	res, err = f.svc.VerifyProof(ctx, tampered)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "commitment does not match", res.Reason)

	_, err = f.svc.GenerateProof(ctx, "DPP001", ClaimTokenized)
	assert.ErrorIs(t, err, domain.ErrValidation, "claim does not hold yet")

	_, err = f.svc.GenerateProof(ctx, "DPP001", "carbon-neutral")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.Delete(ctx, "DPP001")
	require.NoError(t, err)
	res, err = f.svc.VerifyProof(ctx, in)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "passport no longer exists", res.Reason)
}

func TestPassportServiceProofKeyIsPerInstance(t *testing.T) {
	a := newPassportFixture(t, true)
	proof, err := a.svc.GenerateProof(context.Background(), "DPP001", ClaimActive)
	require.NoError(t, err)

	other := NewPassportService(a.repo, a.outbox, nil, newTestEntropy(99), Issuer{})
	res, err := other.VerifyProof(context.Background(), ProofInput{ProofID: proof.ProofID, ProductID: "DPP001", Claim: ClaimActive, Commitment: proof.Commitment})
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestPassportServiceDisclose(t *testing.T) {
	f := newPassportFixture(t, true)
	ctx := context.Background()

	d, err := f.svc.Disclose(ctx, "DPP001", []string{"supplier", "capacityKwh", "secretRecipe", "bom"}, "Recycler AB", "recycling")
	require.NoError(t, err)
	assert.JSONEq(t, `"VoltCell GmbH"`, string(d.Disclosed["supplier"]))
	assert.JSONEq(t, `75`, string(d.Disclosed["capacityKwh"]))
	assert.Equal(t, []string{"bom", "secretRecipe"}, d.Withheld)
	assert.Equal(t, "recycling", d.Purpose)

	_, err = f.svc.Disclose(ctx, "DPP001", nil, "", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPassportServiceVerifyIssuesCredential(t *testing.T) {
	f := newPassportFixture(t, true)
	ctx := context.Background()

	anchor, err := f.svc.Anchor(ctx, "DPP001")
	require.NoError(t, err)

	vc, err := f.svc.Verify(ctx, "DPP001")
	require.NoError(t, err)
	assert.Equal(t, []string{credentialContext, passportContextURI}, vc.Context)
	assert.Contains(t, vc.Type, "VerifiableCredential")
	assert.Equal(t, "DPP Platform Sandbox", vc.Issuer.Name)
	assert.Equal(t, "urn:dpp:DPP001", vc.CredentialSubject.ID)
	assert.Equal(t, anchor.TxHash, vc.CredentialSubject.AnchorTx)
	assert.Equal(t, domain.ComplianceCompliant, vc.CredentialSubject.Compliance)
	assert.Regexp(t, `^[0-9a-f]{64}$`, vc.Proof.ProofValue)

	// The credential is recognized by the response renderer.
	view := Render("Credential", vc, false)
	require.NotNil(t, view.Credential)
	assert.Equal(t, "DPP Platform Sandbox", view.Credential.Issuer)

	_, err = f.svc.Update(ctx, "DPP001", PassportInput{ProductName: "EcoCharge Battery Pack", Status: string(domain.PassportRecalled)})
	require.NoError(t, err)
	_, err = f.svc.Verify(ctx, "DPP001")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
