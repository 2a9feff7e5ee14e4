// Package ddb provides a single-table DynamoDB repository for claims and principals.
package ddb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/oklog/ulid/v2"

	"github.com/kylejryan/claims-portal/internal/models"
)

const (
	claimSK     = "CLAIM"
	principalSK = "PROFILE"

	// EmailIndex is the GSI keyed by claimant_email (hash) and submission_date (range).
	EmailIndex = "claimant-email-index"

	// timeLayout is fixed-width so that string comparison orders instants correctly.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// API is the subset of *dynamodb.Client the repository uses.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Repo wraps a DynamoDB client and table name for claim and principal operations.
type Repo struct {
	DB    API
	Table string
}

// claimItem is the stored shape of a claim.
type claimItem struct {
	// DynamoDB keys
	PK string `dynamodbav:"PK"` // CLAIM#<id>
	SK string `dynamodbav:"SK"` // CLAIM

	ClaimID         string   `dynamodbav:"claim_id"`
	ClaimantName    string   `dynamodbav:"claimant_name"`
	ClaimantEmail   string   `dynamodbav:"claimant_email"`
	ClaimAmount     float64  `dynamodbav:"claim_amount"`
	Description     string   `dynamodbav:"description"`
	DocumentRef     string   `dynamodbav:"document_ref,omitempty"`
	Status          string   `dynamodbav:"status"`
	SubmissionDate  string   `dynamodbav:"submission_date"`
	ApprovedAmount  *float64 `dynamodbav:"approved_amount,omitempty"`
	InsurerComments *string  `dynamodbav:"insurer_comments,omitempty"`
}

// principalItem is the stored shape of a principal.
type principalItem struct {
	PK    string `dynamodbav:"PK"` // USER#<id>
	SK    string `dynamodbav:"SK"` // PROFILE
	ID    string `dynamodbav:"principal_id"`
	Email string `dynamodbav:"email"`
	Role  string `dynamodbav:"role"`
}

// ClaimKey builds the primary key of a claim record.
func ClaimKey(id string) (pk, sk string) {
	return "CLAIM#" + id, claimSK
}

// PrincipalKey builds the primary key of a principal record.
func PrincipalKey(id string) (pk, sk string) {
	return "USER#" + id, principalSK
}

// Create inserts c under a fresh ULID, ensuring no duplicate exists.
func (r *Repo) Create(ctx context.Context, c models.Claim) (string, error) {
	c.ID = ulid.Make().String()
	item, err := attributevalue.MarshalMap(toItem(c))
	if err != nil {
		return "", err
	}
	_, err = r.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &r.Table,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return "", fmt.Errorf("put claim: %w", err)
	}
	return c.ID, nil
}

// Get loads one claim.
func (r *Repo) Get(ctx context.Context, id string) (models.Claim, error) {
	out, err := r.DB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &r.Table,
		Key:            key(ClaimKey(id)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return models.Claim{}, fmt.Errorf("get claim %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return models.Claim{}, fmt.Errorf("claim %s: %w", id, models.ErrNotFound)
	}
	var it claimItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return models.Claim{}, fmt.Errorf("decode claim %s: %w", id, err)
	}
	return fromItem(it)
}

// Find returns the claims matching f, most recent first. An email-scoped query
// reads the email index; anything else scans the claim records.
func (r *Repo) Find(ctx context.Context, f models.ClaimFilter) ([]models.Claim, error) {
	var items []map[string]types.AttributeValue
	var err error
	if f.ClaimantEmail != "" {
		items, err = r.queryByEmail(ctx, f)
	} else {
		items, err = r.scan(ctx, f)
	}
	if err != nil {
		return nil, err
	}

	var its []claimItem
	if err := attributevalue.UnmarshalListOfMaps(items, &its); err != nil {
		return nil, fmt.Errorf("decode claims: %w", err)
	}
	out := make([]models.Claim, 0, len(its))
	for _, it := range its {
		c, err := fromItem(it)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	models.SortClaims(out)
	return out, nil
}

func (r *Repo) queryByEmail(ctx context.Context, f models.ClaimFilter) ([]map[string]types.AttributeValue, error) {
	b := expression.NewBuilder().WithKeyCondition(
		expression.Key("claimant_email").Equal(expression.Value(models.NormalizeEmail(f.ClaimantEmail))),
	)
	if cond, ok := filterCondition(f); ok {
		b = b.WithFilter(cond)
	}
	expr, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	p := dynamodb.NewQueryPaginator(r.DB, &dynamodb.QueryInput{
		TableName:                 &r.Table,
		IndexName:                 aws.String(EmailIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
	})
	var items []map[string]types.AttributeValue
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query claims: %w", err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

func (r *Repo) scan(ctx context.Context, f models.ClaimFilter) ([]map[string]types.AttributeValue, error) {
	cond := expression.Name("SK").Equal(expression.Value(claimSK))
	if extra, ok := filterCondition(f); ok {
		cond = cond.And(extra)
	}
	expr, err := expression.NewBuilder().WithFilter(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("build scan: %w", err)
	}

	p := dynamodb.NewScanPaginator(r.DB, &dynamodb.ScanInput{
		TableName:                 &r.Table,
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	var items []map[string]types.AttributeValue
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan claims: %w", err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// filterCondition translates the non-key constraints of f.
func filterCondition(f models.ClaimFilter) (expression.ConditionBuilder, bool) {
	var conds []expression.ConditionBuilder
	if f.Status != "" {
		conds = append(conds, expression.Name("status").Equal(expression.Value(string(f.Status))))
	}
	if f.ClaimAmount != nil {
		conds = append(conds, expression.Name("claim_amount").Equal(expression.Value(*f.ClaimAmount)))
	}
	if f.StartDate != nil {
		conds = append(conds, expression.Name("submission_date").GreaterThanEqual(expression.Value(formatTime(*f.StartDate))))
	}
	if f.EndDate != nil {
		conds = append(conds, expression.Name("submission_date").LessThanEqual(expression.Value(formatTime(*f.EndDate))))
	}
	switch len(conds) {
	case 0:
		return expression.ConditionBuilder{}, false
	case 1:
		return conds[0], true
	}
	return expression.And(conds[0], conds[1], conds[2:]...), true
}

// Update replaces the record for id with c. Identity, ownership and submission
// date come from id and the stored record; the write fails with ErrNotFound if
// the record has disappeared. No version check: the last write wins.
func (r *Repo) Update(ctx context.Context, id string, c models.Claim) (models.Claim, error) {
	existing, err := r.Get(ctx, id)
	if err != nil {
		return models.Claim{}, err
	}
	c.ID = existing.ID
	c.ClaimantEmail = existing.ClaimantEmail
	c.SubmissionDate = existing.SubmissionDate

	item, err := attributevalue.MarshalMap(toItem(c))
	if err != nil {
		return models.Claim{}, err
	}
	_, err = r.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &r.Table,
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return models.Claim{}, fmt.Errorf("claim %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Claim{}, fmt.Errorf("put claim %s: %w", id, err)
	}
	return c, nil
}

// GetPrincipal loads one principal.
func (r *Repo) GetPrincipal(ctx context.Context, id string) (models.Principal, error) {
	out, err := r.DB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &r.Table,
		Key:       key(PrincipalKey(id)),
	})
	if err != nil {
		return models.Principal{}, fmt.Errorf("get principal %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return models.Principal{}, fmt.Errorf("principal %s: %w", id, models.ErrNotFound)
	}
	var it principalItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return models.Principal{}, fmt.Errorf("decode principal %s: %w", id, err)
	}
	return models.Principal{ID: it.ID, Email: it.Email, Role: models.Role(it.Role)}, nil
}

// PutPrincipal inserts or replaces a principal.
func (r *Repo) PutPrincipal(ctx context.Context, p models.Principal) error {
	pk, sk := PrincipalKey(p.ID)
	item, err := attributevalue.MarshalMap(principalItem{
		PK: pk, SK: sk,
		ID:    p.ID,
		Email: models.NormalizeEmail(p.Email),
		Role:  string(p.Role),
	})
	if err != nil {
		return err
	}
	_, err = r.DB.PutItem(ctx, &dynamodb.PutItemInput{TableName: &r.Table, Item: item})
	if err != nil {
		return fmt.Errorf("put principal %s: %w", p.ID, err)
	}
	return nil
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func toItem(c models.Claim) claimItem {
	pk, sk := ClaimKey(c.ID)
	return claimItem{
		PK: pk, SK: sk,
		ClaimID:         c.ID,
		ClaimantName:    c.ClaimantName,
		ClaimantEmail:   c.ClaimantEmail,
		ClaimAmount:     c.ClaimAmount,
		Description:     c.Description,
		DocumentRef:     c.DocumentRef,
		Status:          string(c.Status),
		SubmissionDate:  formatTime(c.SubmissionDate),
		ApprovedAmount:  c.ApprovedAmount,
		InsurerComments: c.InsurerComments,
	}
}

func fromItem(it claimItem) (models.Claim, error) {
	submitted, err := time.Parse(timeLayout, it.SubmissionDate)
	if err != nil {
		return models.Claim{}, fmt.Errorf("claim %s: parse submission_date %q: %w", it.ClaimID, it.SubmissionDate, err)
	}
	return models.Claim{
		ID:              it.ClaimID,
		ClaimantName:    it.ClaimantName,
		ClaimantEmail:   it.ClaimantEmail,
		ClaimAmount:     it.ClaimAmount,
		Description:     it.Description,
		DocumentRef:     it.DocumentRef,
		Status:          models.ClaimStatus(it.Status),
		SubmissionDate:  submitted,
		ApprovedAmount:  it.ApprovedAmount,
		InsurerComments: it.InsurerComments,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
