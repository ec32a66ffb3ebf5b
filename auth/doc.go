// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides identity resolution, signed links and token generation.

# Signed Links

Emailed decision links (verify donation, confirm interest, offer follow-up)
carry an HMAC-SHA256 signature over the link's subject instead of a session:

	signer := auth.NewLinkSigner(cfg.LinkSecret)
	sig := signer.Sign("verify", requestID)
	err := signer.Verify(sig, "verify", requestID)

The signature is URL-safe base64 encoded without padding. Since it's
deterministic, nothing has to be stored to validate it.

# Identity

Authentication is delegated. Handlers only need a user id:

	resolver := auth.NewJWTResolver(cfg.JWTSecret, "real-hero")
	userID, err := resolver.Resolve(ctx, bearerToken)

JWTResolver accepts HS256 tokens whose subject is the user id.
Any other provider can be plugged in with ResolverFunc.

# Offer Tokens

Offer tokens are random 18-byte (144-bit) hex secrets:

	token, err := auth.GenerateOfferToken()

# ID Generation

UUIDs for stored records and random hex IDs:

	id := auth.NewID()
	hexID, err := auth.GenerateID(16)  // 32 hex characters
*/
package auth
