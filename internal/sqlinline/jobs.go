package sqlinline

const QInsertVideoJob = `--sql 04b44d05-c29a-43a2-aa30-ecbe11cfc56c
insert into video_jobs (
    id, short_id, owner_id, kind, status, progress,
    input_data, output_data, error, provider, native_job_id,
    created_at, updated_at, completed_at, version
)
values (
    $1::uuid, $2::text, $3::text, $4::text, $5::text, $6::int,
    $7::jsonb, $8::jsonb, '', '', '',
    $9::timestamptz, $9::timestamptz, null, 1
);
`

const QSelectVideoJob = `--sql 7170ccad-2d5d-4927-a29a-3164fef57fa8
select id::text, short_id, owner_id, kind, status, progress,
       input_data, output_data, error, created_at, updated_at, completed_at, version
from video_jobs
where id = $1::uuid;
`

const QSelectVideoJobByNativeID = `--sql 7d4beab2-537b-4299-a6b5-56613532b551
select id::text, short_id, owner_id, kind, status, progress,
       input_data, output_data, error, created_at, updated_at, completed_at, version
from video_jobs
where provider = $1::text
  and native_job_id = $2::text
order by created_at desc
limit 1;
`

// QUpdateVideoJobVersioned only matches when nobody else wrote the row since
// it was read; zero affected rows means the caller must re-read and re-merge.
const QUpdateVideoJobVersioned = `--sql 5eeb37bf-462a-429a-b30a-a0bed11295a5
update video_jobs
set status        = $3::text,
    progress      = $4::int,
    input_data    = $5::jsonb,
    output_data   = $6::jsonb,
    error         = $7::text,
    provider      = $8::text,
    native_job_id = $9::text,
    updated_at    = $10::timestamptz,
    completed_at  = $11::timestamptz,
    version       = version + 1
where id = $1::uuid
  and version = $2::bigint;
`

const QSelectStaleVideoJobs = `--sql 7b757d2f-4b2a-4d6e-8f23-be2da2c54e79
select id::text, short_id, owner_id, kind, status, progress,
       input_data, output_data, error, created_at, updated_at, completed_at, version
from video_jobs
where completed_at is null
  and updated_at < $1::timestamptz
order by updated_at asc
limit $2::int;
`
