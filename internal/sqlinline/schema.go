package sqlinline

// Schema is applied by cmd/migrate. It is DDL only and carries no audit marker.
const Schema = `
create table if not exists video_jobs (
    id            uuid primary key,
    short_id      text        not null unique,
    owner_id      text        not null,
    kind          text        not null default 'video',
    status        text        not null,
    progress      int         not null default 0 check (progress between 0 and 100),
    input_data    jsonb       not null default '{}'::jsonb,
    output_data   jsonb       not null default '{}'::jsonb,
    error         text        not null default '',
    provider      text        not null default '',
    native_job_id text        not null default '',
    created_at    timestamptz not null default now(),
    updated_at    timestamptz not null default now(),
    completed_at  timestamptz,
    version       bigint      not null default 1
);

create unique index if not exists video_jobs_live_native_idx
    on video_jobs (provider, native_job_id)
    where native_job_id <> '' and completed_at is null;

create index if not exists video_jobs_stale_idx
    on video_jobs (updated_at)
    where completed_at is null;

create index if not exists video_jobs_owner_day_idx
    on video_jobs (owner_id, created_at);

create table if not exists owner_quotas (
    owner_id    text primary key,
    daily_limit int  not null check (daily_limit >= 0)
);

create table if not exists integration_tokens (
    id         uuid primary key,
    provider   text        not null unique,
    token      text        not null,
    properties jsonb       not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`
